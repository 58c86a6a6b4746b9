package service

import (
	"github.com/muimsd/esri-go/pkg/dynlayer"
	"github.com/muimsd/esri-go/pkg/renderer"
)

// imageStrategy adapts an ImageServer exportImage endpoint as a raster
// source. ImageServer has no sublayers, so the layers machinery is unused;
// rendering and mosaic rules take its place.
type imageStrategy struct{}

func (imageStrategy) family() string { return "ImageService" }

func (imageStrategy) sourceDescriptor(o *Options, _ *dynlayer.Set) renderer.SourceDescriptor {
	eo := exportOptions(o, nil)
	eo.Layers = nil
	eo.LayerDefs = nil
	eo.DynamicLayers = nil
	return renderer.SourceDescriptor{
		Type:     "raster",
		Tiles:    []string{exportTileURL(o.URL, "exportImage", eo)},
		TileSize: tileSize(o),
	}
}

// NewImageService registers an Image service (ImageServer /exportImage) as a
// raster source on the renderer.
func NewImageService(sourceID string, r renderer.Renderer, opts Options, override ...func(*renderer.SourceDescriptor)) (*Adapter, error) {
	if opts.Format == "" {
		opts.Format = "jpgpng"
	}
	return newAdapter(sourceID, r, imageStrategy{}, opts, override)
}
