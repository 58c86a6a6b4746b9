package task

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
)

func TestExportParams_RequiredAndLayers(t *testing.T) {
	v := ExportParams(ExportOptions{
		Format:      "png32",
		Transparent: true,
		Layers:      []int{0, 1, 2},
	})
	assertParam := func(k, want string) {
		t.Helper()
		if got := v.Get(k); got != want {
			t.Fatalf("param %q got %q want %q", k, got, want)
		}
	}
	assertParam("bboxSR", "3857")
	assertParam("imageSR", "3857")
	assertParam("format", "png32")
	assertParam("transparent", "true")
	assertParam("size", "256,256")
	assertParam("f", "image")
	assertParam("layers", "show:0,1,2")

	enc := v.Encode()
	if !strings.Contains(enc, "layers=show%3A0%2C1%2C2") {
		t.Fatalf("encoded query missing show prefix: %s", enc)
	}
	if !strings.Contains(enc, "format=png32") {
		t.Fatalf("encoded query missing format: %s", enc)
	}
}

func TestExportParams_EmptyLayerSliceShowsNothing(t *testing.T) {
	v := ExportParams(ExportOptions{Format: "png24", Layers: []int{}})
	if len(v) != 0 {
		t.Fatalf("empty layers must produce empty params, got %v", v)
	}
	if _, ok := v["layers"]; ok {
		t.Fatalf("layers key must be absent")
	}
}

func TestExportParams_NilLayersDisablesParameter(t *testing.T) {
	v := ExportParams(ExportOptions{Format: "png24"})
	if _, ok := v["layers"]; ok {
		t.Fatalf("nil layers must not default to a layers parameter")
	}
	if v.Get("format") != "png24" {
		t.Fatalf("required params must still be present")
	}
}

func TestExportParams_TimeRequiresTo(t *testing.T) {
	from := time.UnixMilli(1000)
	to := time.UnixMilli(2000)

	v := ExportParams(ExportOptions{Format: "png24", Time: TimeRange{From: &from}})
	if _, ok := v["time"]; ok {
		t.Fatalf("a lone from must be dropped")
	}

	v = ExportParams(ExportOptions{Format: "png24", Time: TimeRange{From: &from, To: &to}})
	if got := v.Get("time"); got != "1000,2000" {
		t.Fatalf("time got %q want %q", got, "1000,2000")
	}
}

func TestExportParams_LayerDefsAndDynamicLayers(t *testing.T) {
	v := ExportParams(ExportOptions{
		Format:        "png24",
		LayerDefs:     map[int]string{0: "POP > 100"},
		DynamicLayers: json.RawMessage(`[{"id":0,"visibility":true}]`),
	})
	var defs map[string]string
	if err := json.Unmarshal([]byte(v.Get("layerDefs")), &defs); err != nil {
		t.Fatalf("layerDefs not JSON: %v", err)
	}
	if defs["0"] != "POP > 100" {
		t.Fatalf("layerDefs got %v", defs)
	}
	if v.Get("dynamicLayers") != `[{"id":0,"visibility":true}]` {
		t.Fatalf("dynamicLayers passed through wrong: %q", v.Get("dynamicLayers"))
	}
}

func TestExportParams_ImageServiceRules(t *testing.T) {
	v := ExportParams(ExportOptions{
		Format:        "jpgpng",
		RenderingRule: map[string]any{"rasterFunction": "Hillshade"},
		MosaicRule:    map[string]any{"mosaicMethod": "esriMosaicLockRaster"},
	})
	if !strings.Contains(v.Get("renderingRule"), "Hillshade") {
		t.Fatalf("renderingRule missing: %q", v.Get("renderingRule"))
	}
	if !strings.Contains(v.Get("mosaicRule"), "esriMosaicLockRaster") {
		t.Fatalf("mosaicRule missing: %q", v.Get("mosaicRule"))
	}

	// absent rules must not be defaulted
	v = ExportParams(ExportOptions{Format: "jpgpng"})
	if _, ok := v["renderingRule"]; ok {
		t.Fatalf("renderingRule must be absent when unset")
	}
}

func TestIdentifyParams(t *testing.T) {
	v := IdentifyParams(IdentifyOptions{
		Point:         orb.Point{-122.45, 37.75},
		MapExtent:     orb.Bound{Min: orb.Point{-123, 37}, Max: orb.Point{-122, 38}},
		DisplayWidth:  800,
		DisplayHeight: 600,
		Layers:        []int{0, 2},
	})
	if v.Get("f") != "json" || v.Get("sr") != "4326" {
		t.Fatalf("required identify params wrong: %v", v)
	}
	if v.Get("geometryType") != "esriGeometryPoint" {
		t.Fatalf("geometryType got %q", v.Get("geometryType"))
	}
	var pt map[string]any
	if err := json.Unmarshal([]byte(v.Get("geometry")), &pt); err != nil {
		t.Fatalf("geometry not JSON: %v", err)
	}
	if pt["x"].(float64) != -122.45 || pt["y"].(float64) != 37.75 {
		t.Fatalf("geometry got %v", pt)
	}
	if v.Get("imageDisplay") != "800,600,96" {
		t.Fatalf("imageDisplay got %q (the 96 dpi suffix is fixed)", v.Get("imageDisplay"))
	}
	if v.Get("mapExtent") != "-123,37,-122,38" {
		t.Fatalf("mapExtent got %q", v.Get("mapExtent"))
	}
	if v.Get("layers") != "visible:0,2" {
		t.Fatalf("identify uses the visible: prefix, got %q", v.Get("layers"))
	}
	if v.Get("tolerance") != "3" {
		t.Fatalf("default tolerance got %q", v.Get("tolerance"))
	}
}

func TestQueryParams_Defaults(t *testing.T) {
	v := QueryParams(QueryOptions{})
	if v.Get("where") != "1=1" {
		t.Fatalf("default where got %q", v.Get("where"))
	}
	if v.Get("outFields") != "*" {
		t.Fatalf("default outFields got %q", v.Get("outFields"))
	}
	if v.Get("f") != "geojson" {
		t.Fatalf("default format got %q", v.Get("f"))
	}
	for _, k := range []string{"geometry", "geometryType", "spatialRel", "inSR"} {
		if _, ok := v[k]; ok {
			t.Fatalf("geometry-dependent param %q must be omitted when no geometry is set", k)
		}
	}
}

func TestQueryParams_WithGeometry(t *testing.T) {
	v := QueryParams(QueryOptions{
		Where:     "STATE = 'WA'",
		OutFields: []string{"NAME", "POP"},
		Geometry:  orb.Bound{Min: orb.Point{-123, 37}, Max: orb.Point{-122, 38}},
	})
	if v.Get("outFields") != "NAME,POP" {
		t.Fatalf("outFields got %q", v.Get("outFields"))
	}
	if v.Get("geometryType") != "esriGeometryEnvelope" {
		t.Fatalf("geometryType got %q", v.Get("geometryType"))
	}
	if v.Get("spatialRel") != "esriSpatialRelIntersects" {
		t.Fatalf("spatialRel got %q", v.Get("spatialRel"))
	}
	if v.Get("inSR") != "4326" {
		t.Fatalf("inSR got %q", v.Get("inSR"))
	}
}

func TestFindParams(t *testing.T) {
	v := FindParams(FindOptions{
		SearchText:   "Colorado",
		Contains:     true,
		SearchFields: []string{"STATE_NAME", "NAME"},
		Layers:       []int{0, 1},
	})
	if v.Get("searchText") != "Colorado" || v.Get("contains") != "true" {
		t.Fatalf("find params wrong: %v", v)
	}
	if v.Get("searchFields") != "STATE_NAME,NAME" {
		t.Fatalf("searchFields got %q", v.Get("searchFields"))
	}
	if v.Get("layers") != "0,1" {
		t.Fatalf("find layers are a bare CSV, got %q", v.Get("layers"))
	}
}

func TestStatisticsParams(t *testing.T) {
	v := StatisticsParams("", []Statistic{{Type: "sum", Field: "POP", OutName: "POP_SUM"}}, []string{"STATE"})
	if v.Get("where") != "1=1" {
		t.Fatalf("where got %q", v.Get("where"))
	}
	if !strings.Contains(v.Get("outStatistics"), `"statisticType":"sum"`) {
		t.Fatalf("outStatistics got %q", v.Get("outStatistics"))
	}
	if v.Get("groupByFieldsForStatistics") != "STATE" {
		t.Fatalf("groupBy got %q", v.Get("groupByFieldsForStatistics"))
	}
}

func TestURL_Joining(t *testing.T) {
	got := URL("https://x/MapServer/", "identify", nil)
	if got != "https://x/MapServer/identify" {
		t.Fatalf("URL got %q", got)
	}
	v := QueryParams(QueryOptions{})
	got = URL("https://x/FeatureServer/0", "query", v)
	if !strings.HasPrefix(got, "https://x/FeatureServer/0/query?") {
		t.Fatalf("URL got %q", got)
	}
}
