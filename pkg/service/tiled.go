package service

import (
	"github.com/muimsd/esri-go/pkg/dynlayer"
	"github.com/muimsd/esri-go/pkg/renderer"
)

// tiledStrategy adapts a cached MapServer tile endpoint as a raster source.
// No export parameters apply; the server renders tiles ahead of time.
type tiledStrategy struct{}

func (tiledStrategy) family() string { return "TiledMapService" }

func (tiledStrategy) sourceDescriptor(o *Options, _ *dynlayer.Set) renderer.SourceDescriptor {
	return renderer.SourceDescriptor{
		Type:     "raster",
		Tiles:    []string{o.URL + "/tile/{z}/{y}/{x}"},
		TileSize: tileSize(o),
	}
}

// NewTiledMapService registers a cached (tiled) map service as a raster
// source on the renderer.
func NewTiledMapService(sourceID string, r renderer.Renderer, opts Options, override ...func(*renderer.SourceDescriptor)) (*Adapter, error) {
	return newAdapter(sourceID, r, tiledStrategy{}, opts, override)
}
