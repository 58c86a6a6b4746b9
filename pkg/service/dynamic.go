package service

import (
	"github.com/muimsd/esri-go/pkg/dynlayer"
	"github.com/muimsd/esri-go/pkg/renderer"
)

// dynamicStrategy adapts a MapServer export endpoint as a raster source.
type dynamicStrategy struct{}

func (dynamicStrategy) family() string { return "MapService" }

func (dynamicStrategy) sourceDescriptor(o *Options, dyn *dynlayer.Set) renderer.SourceDescriptor {
	return renderer.SourceDescriptor{
		Type:     "raster",
		Tiles:    []string{exportTileURL(o.URL, "export", exportOptions(o, dyn))},
		TileSize: tileSize(o),
	}
}

// NewDynamicMapService registers a Dynamic Map service (MapServer /export)
// as a raster source on the renderer.
func NewDynamicMapService(sourceID string, r renderer.Renderer, opts Options, override ...func(*renderer.SourceDescriptor)) (*Adapter, error) {
	return newAdapter(sourceID, r, dynamicStrategy{}, opts, override)
}
