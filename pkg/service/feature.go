package service

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/muimsd/esri-go/pkg/dynlayer"
	"github.com/muimsd/esri-go/pkg/renderer"
	"github.com/muimsd/esri-go/pkg/task"
)

// featureStrategy adapts a FeatureServer layer either as a vector-tile
// source (when the service has a companion VectorTileServer) or as a geojson
// source backed by a query URL. The choice is made once, at construction; a
// later mutation never re-evaluates it.
type featureStrategy struct {
	vectorTiles bool
	tilesURL    string
}

func (featureStrategy) family() string { return "FeatureService" }

func (s featureStrategy) sourceDescriptor(o *Options, _ *dynlayer.Set) renderer.SourceDescriptor {
	if s.vectorTiles {
		return renderer.SourceDescriptor{
			Type:  "vector",
			Tiles: []string{s.tilesURL},
		}
	}
	q := task.QueryParams(task.QueryOptions{
		Where:          o.Where,
		OutFields:      o.OutFields,
		Geometry:       o.Geometry,
		ReturnGeometry: true,
	})
	return renderer.SourceDescriptor{
		Type: "geojson",
		Data: task.URL(o.URL, "query", q),
	}
}

var featureServerRe = regexp.MustCompile(`FeatureServer(/\d+)?/?$`)

// vectorTileServerURL rewrites a FeatureServer (layer) URL to its companion
// VectorTileServer, or returns "" when the URL has no FeatureServer segment.
func vectorTileServerURL(featureURL string) string {
	if !featureServerRe.MatchString(featureURL) {
		return ""
	}
	return featureServerRe.ReplaceAllString(featureURL, "VectorTileServer")
}

// probeVectorTiles performs the one-time construction check: a companion
// VectorTileServer that serves tile 0/0/0 means vector tiles are available.
func probeVectorTiles(client *http.Client, vtURL string) bool {
	if vtURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vtURL+"/tile/0/0/0.pbf", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// NewFeatureService registers a FeatureServer layer on the renderer. With
// UseVectorTiles enabled (the default) the constructor probes for a
// companion VectorTileServer and prefers its pbf tiles; otherwise, or when
// the probe fails, the source is geojson data fetched from the layer query
// URL.
func NewFeatureService(sourceID string, r renderer.Renderer, opts Options, override ...func(*renderer.SourceDescriptor)) (*Adapter, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	client := opts.Client
	if client == nil {
		client = defaultClient
	}

	strat := featureStrategy{}
	if opts.vectorTilesEnabled() {
		if vt := vectorTileServerURL(opts.URL); vt != "" && probeVectorTiles(client, vt) {
			strat.vectorTiles = true
			strat.tilesURL = strings.TrimRight(vt, "/") + "/tile/{z}/{y}/{x}.pbf"
		}
	}
	return newAdapter(sourceID, r, strat, opts, override)
}
