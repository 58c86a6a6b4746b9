package service

import (
	"errors"
	"strings"
	"testing"
)

func TestVectorBasemapStyleRequiresKey(t *testing.T) {
	var cfgErr *ConfigurationError
	if _, err := NewVectorBasemapStyle("ArcGIS:Streets", ""); !errors.As(err, &cfgErr) {
		t.Fatalf("got %v, want ConfigurationError", err)
	}
	if _, err := NewVectorBasemapStyle("ArcGIS:Streets", "   "); !errors.As(err, &cfgErr) {
		t.Fatalf("blank key: got %v, want ConfigurationError", err)
	}
}

func TestVectorBasemapStyleNameResolution(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "ArcGIS:Streets"},
		{"ArcGIS:Navigation", "ArcGIS:Navigation"},
		{"streets", "ArcGIS:Streets"},
		{"dark-gray", "ArcGIS:DarkGray"},
		{"osm-standard", "OSM:Standard"},
		{"arcgis/streets", "ArcGIS:Streets"},
		{"osm/lightGray", "OSM:LightGray"},
	}
	for _, tc := range tests {
		v, err := NewVectorBasemapStyle(tc.in, "test-key")
		if err != nil {
			t.Fatalf("NewVectorBasemapStyle(%q): %v", tc.in, err)
		}
		if v.Name != tc.want {
			t.Errorf("name for %q = %q, want %q", tc.in, v.Name, tc.want)
		}
	}
}

func TestVectorBasemapStyleURL(t *testing.T) {
	v, err := NewVectorBasemapStyle("ArcGIS:Streets", "abc123")
	if err != nil {
		t.Fatalf("NewVectorBasemapStyle: %v", err)
	}
	u := v.StyleURL()
	if !strings.HasPrefix(u, "https://basemaps-api.arcgis.com/arcgis/rest/services/styles/ArcGIS:Streets?") {
		t.Fatalf("style url = %q", u)
	}
	if !strings.Contains(u, "token=abc123") || !strings.Contains(u, "type=style") {
		t.Fatalf("style url %q missing token/type parameters", u)
	}
}
