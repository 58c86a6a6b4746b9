// Package task builds ArcGIS REST query parameters and runs one-shot task
// requests (identify, find, query, export) against a service.
package task

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// WebMercator is the spatial reference used for export imagery.
const WebMercator = 3857

// WGS84 is the spatial reference used for task geometry.
const WGS84 = 4326

// TimeRange is the from/to pair of a time-aware service. The wire parameter
// is only emitted when To is set; a lone From is silently dropped (behavior
// kept from the original adapters, see the flagged half-open-range question).
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

func (r TimeRange) param() (string, bool) {
	if r.From == nil || r.To == nil {
		return "", false
	}
	return fmt.Sprintf("%d,%d", r.From.UnixMilli(), r.To.UnixMilli()), true
}

func csvInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func fcoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func jsonParam(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// ExportOptions feeds the export/exportImage parameter builders.
type ExportOptions struct {
	Format      string
	Transparent bool
	DPI         int
	Size        [2]int

	// Layers selects sublayers: nil disables the layers parameter, an empty
	// non-nil slice means "show nothing".
	Layers        []int
	LayerDefs     map[int]string
	DynamicLayers json.RawMessage
	Time          TimeRange

	// Image service only.
	RenderingRule any
	MosaicRule    any
}

// ExportParams assembles the export tile query. An empty non-nil Layers
// slice short-circuits to an empty parameter set: nothing is shown, so no
// request parameters are synthesized at all.
func ExportParams(o ExportOptions) url.Values {
	if o.Layers != nil && len(o.Layers) == 0 {
		return url.Values{}
	}

	v := url.Values{}
	v.Set("bboxSR", strconv.Itoa(WebMercator))
	v.Set("imageSR", strconv.Itoa(WebMercator))
	v.Set("format", o.Format)
	v.Set("transparent", strconv.FormatBool(o.Transparent))
	size := o.Size
	if size == [2]int{} {
		size = [2]int{256, 256}
	}
	v.Set("size", fmt.Sprintf("%d,%d", size[0], size[1]))
	v.Set("f", "image")

	if o.DPI > 0 {
		v.Set("dpi", strconv.Itoa(o.DPI))
	}
	if o.Layers != nil {
		v.Set("layers", "show:"+csvInts(o.Layers))
	}
	if len(o.LayerDefs) > 0 {
		v.Set("layerDefs", jsonParam(o.LayerDefs))
	}
	if len(o.DynamicLayers) > 0 {
		v.Set("dynamicLayers", string(o.DynamicLayers))
	}
	if t, ok := o.Time.param(); ok {
		v.Set("time", t)
	}
	if o.RenderingRule != nil {
		v.Set("renderingRule", jsonParam(o.RenderingRule))
	}
	if o.MosaicRule != nil {
		v.Set("mosaicRule", jsonParam(o.MosaicRule))
	}
	return v
}

// esriPoint is the geometry JSON for a point task parameter.
type esriPoint struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	SR sr      `json:"spatialReference"`
}

type esriEnvelope struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
	SR   sr      `json:"spatialReference"`
}

type esriPolygon struct {
	Rings [][][2]float64 `json:"rings"`
	SR    sr             `json:"spatialReference"`
}

type sr struct {
	WKID int `json:"wkid"`
}

// GeometryParam converts an orb geometry into the esri geometry JSON and its
// geometryType name. Points, bounds (envelopes) and polygons are supported;
// anything else reports false.
func GeometryParam(g orb.Geometry) (geometry, geometryType string, ok bool) {
	switch t := g.(type) {
	case orb.Point:
		return jsonParam(esriPoint{X: t.Lon(), Y: t.Lat(), SR: sr{WGS84}}), "esriGeometryPoint", true
	case orb.Bound:
		return jsonParam(esriEnvelope{
			XMin: t.Min.Lon(), YMin: t.Min.Lat(),
			XMax: t.Max.Lon(), YMax: t.Max.Lat(),
			SR: sr{WGS84},
		}), "esriGeometryEnvelope", true
	case orb.Polygon:
		rings := make([][][2]float64, len(t))
		for i, ring := range t {
			rings[i] = make([][2]float64, len(ring))
			for j, p := range ring {
				rings[i][j] = [2]float64{p.Lon(), p.Lat()}
			}
		}
		return jsonParam(esriPolygon{Rings: rings, SR: sr{WGS84}}), "esriGeometryPolygon", true
	default:
		return "", "", false
	}
}

// IdentifyOptions feeds IdentifyParams.
type IdentifyOptions struct {
	Point          orb.Point
	MapExtent      orb.Bound
	DisplayWidth   int
	DisplayHeight  int
	Tolerance      int
	ReturnGeometry bool

	Layers        []int
	LayerDefs     map[int]string
	DynamicLayers json.RawMessage
	Time          TimeRange
}

// IdentifyParams assembles the identify task query. The imageDisplay DPI
// suffix is fixed at 96; the layers parameter uses the "visible:" prefix
// (tile export uses "show:").
func IdentifyParams(o IdentifyOptions) url.Values {
	v := url.Values{}
	v.Set("f", "json")
	v.Set("sr", strconv.Itoa(WGS84))
	geom, gt, _ := GeometryParam(o.Point)
	v.Set("geometryType", gt)
	v.Set("geometry", geom)
	tol := o.Tolerance
	if tol <= 0 {
		tol = 3
	}
	v.Set("tolerance", strconv.Itoa(tol))
	v.Set("returnGeometry", strconv.FormatBool(o.ReturnGeometry))
	v.Set("imageDisplay", fmt.Sprintf("%d,%d,96", o.DisplayWidth, o.DisplayHeight))
	v.Set("mapExtent", strings.Join([]string{
		fcoord(o.MapExtent.Min.Lon()), fcoord(o.MapExtent.Min.Lat()),
		fcoord(o.MapExtent.Max.Lon()), fcoord(o.MapExtent.Max.Lat()),
	}, ","))

	if len(o.Layers) > 0 {
		v.Set("layers", "visible:"+csvInts(o.Layers))
	}
	if len(o.LayerDefs) > 0 {
		v.Set("layerDefs", jsonParam(o.LayerDefs))
	}
	if len(o.DynamicLayers) > 0 {
		v.Set("dynamicLayers", string(o.DynamicLayers))
	}
	if t, ok := o.Time.param(); ok {
		v.Set("time", t)
	}
	return v
}

// FindOptions feeds FindParams.
type FindOptions struct {
	SearchText   string
	Contains     bool
	SearchFields []string
	Layers       []int

	LayerDefs      map[int]string
	DynamicLayers  json.RawMessage
	Time           TimeRange
	ReturnGeometry bool
}

// FindParams assembles the find task query.
func FindParams(o FindOptions) url.Values {
	v := url.Values{}
	v.Set("f", "json")
	v.Set("sr", strconv.Itoa(WGS84))
	v.Set("searchText", o.SearchText)
	v.Set("contains", strconv.FormatBool(o.Contains))
	v.Set("returnGeometry", strconv.FormatBool(o.ReturnGeometry))
	if len(o.SearchFields) > 0 {
		v.Set("searchFields", strings.Join(o.SearchFields, ","))
	}
	if len(o.Layers) > 0 {
		v.Set("layers", csvInts(o.Layers))
	}
	if len(o.LayerDefs) > 0 {
		v.Set("layerDefs", jsonParam(o.LayerDefs))
	}
	if len(o.DynamicLayers) > 0 {
		v.Set("dynamicLayers", string(o.DynamicLayers))
	}
	if t, ok := o.Time.param(); ok {
		v.Set("time", t)
	}
	return v
}

// QueryOptions feeds QueryParams for a feature layer query.
type QueryOptions struct {
	Where          string
	OutFields      []string
	Format         string
	ReturnGeometry bool

	// Geometry, when set, adds the four geometry-dependent parameters; when
	// nil they are omitted entirely rather than defaulted.
	Geometry   orb.Geometry
	SpatialRel string
}

// QueryParams assembles a feature query.
func QueryParams(o QueryOptions) url.Values {
	v := url.Values{}
	where := o.Where
	if where == "" {
		where = "1=1"
	}
	v.Set("where", where)
	if len(o.OutFields) > 0 {
		v.Set("outFields", strings.Join(o.OutFields, ","))
	} else {
		v.Set("outFields", "*")
	}
	f := o.Format
	if f == "" {
		f = "geojson"
	}
	v.Set("f", f)
	v.Set("returnGeometry", strconv.FormatBool(o.ReturnGeometry))

	if o.Geometry != nil {
		geom, gt, ok := GeometryParam(o.Geometry)
		if ok {
			rel := o.SpatialRel
			if rel == "" {
				rel = "esriSpatialRelIntersects"
			}
			v.Set("geometry", geom)
			v.Set("geometryType", gt)
			v.Set("spatialRel", rel)
			v.Set("inSR", strconv.Itoa(WGS84))
		}
	}
	return v
}

// Statistic is one outStatistics entry for a layer statistics query.
type Statistic struct {
	Type    string `json:"statisticType"`
	Field   string `json:"onStatisticField"`
	OutName string `json:"outStatisticFieldName"`
}

// StatisticsParams assembles a statistics query over a feature layer.
func StatisticsParams(where string, stats []Statistic, groupBy []string) url.Values {
	v := url.Values{}
	if where == "" {
		where = "1=1"
	}
	v.Set("where", where)
	v.Set("f", "json")
	v.Set("returnGeometry", "false")
	v.Set("outStatistics", jsonParam(stats))
	if len(groupBy) > 0 {
		v.Set("groupByFieldsForStatistics", strings.Join(groupBy, ","))
	}
	return v
}
