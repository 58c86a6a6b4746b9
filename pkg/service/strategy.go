package service

import (
	"github.com/muimsd/esri-go/pkg/dynlayer"
	"github.com/muimsd/esri-go/pkg/renderer"
	"github.com/muimsd/esri-go/pkg/task"
)

// strategy is the per-family part of an adapter: deriving the renderer
// source from current option state. Everything else (mutators, debouncing,
// tasks, lifecycle) is shared by the generic Adapter.
type strategy interface {
	family() string
	sourceDescriptor(o *Options, dyn *dynlayer.Set) renderer.SourceDescriptor
}

const defaultTileSize = 256

func tileSize(o *Options) int {
	if o.TileSize > 0 {
		return o.TileSize
	}
	return defaultTileSize
}

// exportOptions maps adapter option state onto the export parameter builder,
// serializing the dynamic layer set when it has content.
func exportOptions(o *Options, dyn *dynlayer.Set) task.ExportOptions {
	eo := task.ExportOptions{
		Format:        o.Format,
		Transparent:   o.Transparent,
		DPI:           o.DPI,
		Layers:        o.Layers,
		LayerDefs:     o.LayerDefs,
		Time:          task.TimeRange{From: o.From, To: o.To},
		RenderingRule: o.RenderingRule,
		MosaicRule:    o.MosaicRule,
	}
	if dyn != nil && dyn.Len() > 0 {
		if b, err := dyn.MarshalFor(o.Layers); err == nil {
			eo.DynamicLayers = b
		}
	}
	return eo
}

// exportTileURL is the export endpoint with query parameters plus the
// renderer's bbox template. The {bbox-epsg-3857} placeholder is appended raw
// so the renderer can substitute it per tile.
func exportTileURL(serviceURL, endpoint string, eo task.ExportOptions) string {
	u := serviceURL + "/" + endpoint + "?"
	if enc := task.ExportParams(eo).Encode(); enc != "" {
		u += enc + "&"
	}
	return u + "bbox={bbox-epsg-3857}"
}
