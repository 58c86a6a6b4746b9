package service

import (
	"net/url"
	"strings"
)

const basemapStyleBase = "https://basemaps-api.arcgis.com/arcgis/rest/services/styles/"

// basemapStyleAliases maps short names onto canonical basemap style names.
// Owned by the factory; never mutated.
var basemapStyleAliases = map[string]string{
	"streets":             "ArcGIS:Streets",
	"streets-night":       "ArcGIS:StreetsNight",
	"streets-relief":      "ArcGIS:StreetsRelief",
	"topographic":         "ArcGIS:Topographic",
	"navigation":          "ArcGIS:Navigation",
	"navigation-night":    "ArcGIS:NavigationNight",
	"light-gray":          "ArcGIS:LightGray",
	"dark-gray":           "ArcGIS:DarkGray",
	"oceans":              "ArcGIS:Oceans",
	"imagery":             "ArcGIS:Imagery",
	"imagery-standard":    "ArcGIS:ImageryStandard",
	"terrain":             "ArcGIS:Terrain",
	"community":           "ArcGIS:Community",
	"charted-territory":   "ArcGIS:ChartedTerritory",
	"nova":                "ArcGIS:Nova",
	"midcentury":          "ArcGIS:Midcentury",
	"osm-standard":        "OSM:Standard",
	"osm-standard-relief": "OSM:StandardRelief",
	"osm-streets":         "OSM:Streets",
	"osm-light-gray":      "OSM:LightGray",
	"osm-dark-gray":       "OSM:DarkGray",
}

// VectorBasemapStyle resolves named esri basemap styles to their style-API
// URL. It carries no renderer source of its own; the host passes StyleURL to
// its style loader.
type VectorBasemapStyle struct {
	Name   string
	apiKey string
}

// NewVectorBasemapStyle creates a style reference for styleName, which may
// be a canonical name ("ArcGIS:Streets"), the legacy slash form
// ("arcgis/streets"), or a short alias ("streets"). An API key is required.
func NewVectorBasemapStyle(styleName, apiKey string) (*VectorBasemapStyle, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &ConfigurationError{Reason: "basemap style requires an api key"}
	}
	name := strings.TrimSpace(styleName)
	if name == "" {
		name = "ArcGIS:Streets"
	}
	if canonical, ok := basemapStyleAliases[strings.ToLower(name)]; ok {
		name = canonical
	}
	// legacy slash-separated names map onto the colon form
	if !strings.Contains(name, ":") && strings.Contains(name, "/") {
		parts := strings.SplitN(name, "/", 2)
		name = canonicalSegment(parts[0]) + ":" + canonicalSegment(parts[1])
	}
	return &VectorBasemapStyle{Name: name, apiKey: apiKey}, nil
}

func canonicalSegment(s string) string {
	switch strings.ToLower(s) {
	case "arcgis":
		return "ArcGIS"
	case "osm":
		return "OSM"
	default:
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	}
}

// StyleURL is the style-API endpoint for this basemap style.
func (v *VectorBasemapStyle) StyleURL() string {
	q := url.Values{}
	q.Set("type", "style")
	q.Set("token", v.apiKey)
	return basemapStyleBase + url.PathEscape(v.Name) + "?" + q.Encode()
}
