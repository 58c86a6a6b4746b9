package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/muimsd/esri-go/pkg/renderer"
)

func TestVectorTileServerURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{
			"https://services.arcgis.com/abc/arcgis/rest/services/trees/FeatureServer/0",
			"https://services.arcgis.com/abc/arcgis/rest/services/trees/VectorTileServer",
		},
		{
			"https://services.arcgis.com/abc/arcgis/rest/services/trees/FeatureServer",
			"https://services.arcgis.com/abc/arcgis/rest/services/trees/VectorTileServer",
		},
		{
			"https://services.arcgis.com/abc/arcgis/rest/services/trees/FeatureServer/12/",
			"https://services.arcgis.com/abc/arcgis/rest/services/trees/VectorTileServer",
		},
		{"https://example.com/arcgis/rest/services/demo/MapServer", ""},
	}
	for _, tc := range tests {
		if got := vectorTileServerURL(tc.in); got != tc.want {
			t.Errorf("vectorTileServerURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFeatureServicePrefersVectorTilesWhenProbeSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/VectorTileServer/tile/0/0/0.pbf") {
			w.Header().Set("Content-Type", "application/x-protobuf")
			_, _ = w.Write([]byte{0x1a})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := renderer.NewFake()
	opts := testOptions(srv.URL + "/rest/services/trees/FeatureServer/0")
	opts.Client = srv.Client()
	a, err := NewFeatureService("trees", f, opts)
	if err != nil {
		t.Fatalf("NewFeatureService: %v", err)
	}

	desc, _ := f.GetSource(a.SourceID())
	if desc.Type != "vector" {
		t.Fatalf("source type = %q, want vector", desc.Type)
	}
	want := srv.URL + "/rest/services/trees/VectorTileServer/tile/{z}/{y}/{x}.pbf"
	if len(desc.Tiles) != 1 || desc.Tiles[0] != want {
		t.Fatalf("tiles = %v, want %q", desc.Tiles, want)
	}
}

func TestFeatureServiceFallsBackToGeoJSON(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := renderer.NewFake()
	opts := testOptions(srv.URL + "/rest/services/trees/FeatureServer/0")
	opts.Client = srv.Client()
	opts.Where = "HEIGHT > 10"
	a, err := NewFeatureService("trees", f, opts)
	if err != nil {
		t.Fatalf("NewFeatureService: %v", err)
	}

	desc, _ := f.GetSource(a.SourceID())
	if desc.Type != "geojson" {
		t.Fatalf("source type = %q, want geojson", desc.Type)
	}
	data, _ := desc.Data.(string)
	if !strings.HasPrefix(data, opts.URL+"/query?") {
		t.Fatalf("data url = %q, want query endpoint", data)
	}
	for _, part := range []string{"f=geojson", "where=HEIGHT+%3E+10", "returnGeometry=true"} {
		if !strings.Contains(data, part) {
			t.Fatalf("data url %q missing %q", data, part)
		}
	}
}

func TestFeatureServiceProbeChoiceIsSticky(t *testing.T) {
	f := renderer.NewFake()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	opts := testOptions(srv.URL + "/rest/services/trees/FeatureServer/0")
	opts.Client = srv.Client()
	a, err := NewFeatureService("trees", f, opts)
	if err != nil {
		t.Fatalf("NewFeatureService: %v", err)
	}

	// a later mutation never re-runs the probe, only the query parameters move
	a.SetWhere("SPECIES = 'oak'")
	waitFor(t, func() bool {
		desc, _ := f.GetSource(a.SourceID())
		data, _ := desc.Data.(string)
		return desc.Type == "geojson" && strings.Contains(data, "oak")
	})
}

func TestFeatureServiceExplicitOptOutSkipsProbe(t *testing.T) {
	f := renderer.NewFake()
	// an unreachable URL would fail the probe loudly; opting out never dials
	opts := testOptions("https://example.invalid/rest/services/trees/FeatureServer/0")
	opts.UseVectorTiles = Bool(false)
	opts.Client = &http.Client{Transport: failingTransport{}}
	a, err := NewFeatureService("trees", f, opts)
	if err != nil {
		t.Fatalf("NewFeatureService: %v", err)
	}
	desc, _ := f.GetSource(a.SourceID())
	if desc.Type != "geojson" {
		t.Fatalf("source type = %q, want geojson", desc.Type)
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, http.ErrHandlerTimeout
}

func TestDefaultStyleLayerReboundToSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/VectorTileServer"):
			_, _ = w.Write([]byte(`{"name":"labels","defaultStyles":"resources/styles"}`))
		case strings.HasSuffix(r.URL.Path, "/resources/styles/root.json"):
			_, _ = w.Write([]byte(`{"layers":[{"id":"label-halo","type":"symbol","source":"esri","source-layer":"labels"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := renderer.NewFake()
	opts := testOptions(srv.URL + "/VectorTileServer")
	opts.Client = srv.Client()
	a, err := NewVectorTileService("vt-style", f, opts)
	if err != nil {
		t.Fatalf("NewVectorTileService: %v", err)
	}

	spec, err := a.DefaultStyleLayer(context.Background())
	if err != nil {
		t.Fatalf("DefaultStyleLayer: %v", err)
	}
	if spec.ID != "label-halo" || spec.Type != "symbol" {
		t.Fatalf("spec = %+v", spec)
	}
	if spec.Source != "vt-style" {
		t.Fatalf("spec source = %q, want rebound to vt-style", spec.Source)
	}
	if spec.SourceLayer != "labels" {
		t.Fatalf("spec source-layer = %q", spec.SourceLayer)
	}
}
