package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/muimsd/esri-go/pkg/dynlayer"
	"github.com/muimsd/esri-go/pkg/renderer"
	"github.com/muimsd/esri-go/pkg/task"
)

// vectorTileStrategy adapts a VectorTileServer as a vector source.
type vectorTileStrategy struct{}

func (vectorTileStrategy) family() string { return "VectorTileService" }

func (vectorTileStrategy) sourceDescriptor(o *Options, _ *dynlayer.Set) renderer.SourceDescriptor {
	return renderer.SourceDescriptor{
		Type:  "vector",
		Tiles: []string{o.URL + "/tile/{z}/{y}/{x}.pbf"},
	}
}

// NewVectorTileService registers a VectorTileServer as a vector source on
// the renderer.
func NewVectorTileService(sourceID string, r renderer.Renderer, opts Options, override ...func(*renderer.SourceDescriptor)) (*Adapter, error) {
	return newAdapter(sourceID, r, vectorTileStrategy{}, opts, override)
}

// styleDocument is the subset of a vector tile style the adapter reads.
type styleDocument struct {
	Layers []renderer.LayerSpec `json:"layers"`
}

// DefaultStyle fetches the service's default style document. The style path
// comes from service metadata (defaultStyles), falling back to the
// conventional resources/styles location.
func (a *Adapter) DefaultStyle(ctx context.Context) (json.RawMessage, error) {
	if a.isRemoved() {
		return nil, ErrRemoved
	}
	m, err := a.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	stylePath := strings.Trim(m.DefaultStyles, "/")
	if stylePath == "" {
		stylePath = "resources/styles"
	}
	var raw json.RawMessage
	u := task.URL(a.serviceURL(), stylePath+"/root.json", nil)
	if err := task.GetJSON(ctx, a.client, u, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DefaultStyleLayer returns the first layer of the default style, rebound to
// this adapter's source id, ready for Renderer.AddLayer.
func (a *Adapter) DefaultStyleLayer(ctx context.Context) (renderer.LayerSpec, error) {
	raw, err := a.DefaultStyle(ctx)
	if err != nil {
		return renderer.LayerSpec{}, err
	}
	var doc styleDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return renderer.LayerSpec{}, fmt.Errorf("parse style document: %w", err)
	}
	if len(doc.Layers) == 0 {
		return renderer.LayerSpec{}, fmt.Errorf("style document has no layers")
	}
	spec := doc.Layers[0]
	spec.Source = a.SourceID()
	return spec, nil
}
