package service

import (
	"context"
	"encoding/json"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/muimsd/esri-go/internal/observability"
	"github.com/muimsd/esri-go/pkg/task"
)

// Metadata is the service-level JSON document served at {url}?f=json. Only
// the fields the adapters consume are modeled; the full payload is kept in
// Raw for callers that need more.
type Metadata struct {
	CurrentVersion json.Number     `json:"currentVersion"`
	Name           string          `json:"name"`
	MapName        string          `json:"mapName"`
	Description    string          `json:"description"`
	CopyrightText  string          `json:"copyrightText"`
	Layers         []LayerInfo     `json:"layers"`
	Tables         []LayerInfo     `json:"tables"`
	Fields         []Field         `json:"fields"`
	GeometryType   string          `json:"geometryType"`
	FullExtent     *Extent         `json:"fullExtent"`
	TimeInfo       *TimeInfo       `json:"timeInfo"`
	DefaultStyles  string          `json:"defaultStyles"`
	TileInfo       json.RawMessage `json:"tileInfo"`

	Raw json.RawMessage `json:"-"`
}

// LayerInfo describes one sublayer, either from the service document or from
// {url}/{id}?f=json.
type LayerInfo struct {
	ID                int     `json:"id"`
	Name              string  `json:"name"`
	Type              string  `json:"type"`
	GeometryType      string  `json:"geometryType"`
	Description       string  `json:"description"`
	ParentLayerID     int     `json:"parentLayerId"`
	DefaultVisibility bool    `json:"defaultVisibility"`
	MinScale          float64 `json:"minScale"`
	MaxScale          float64 `json:"maxScale"`
	Fields            []Field `json:"fields"`
	Extent            *Extent `json:"extent"`
}

// Field is one attribute field of a layer.
type Field struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Alias  string `json:"alias"`
	Length int    `json:"length"`
}

// Extent is an esri envelope.
type Extent struct {
	XMin             float64 `json:"xmin"`
	YMin             float64 `json:"ymin"`
	XMax             float64 `json:"xmax"`
	YMax             float64 `json:"ymax"`
	SpatialReference struct {
		WKID int `json:"wkid"`
	} `json:"spatialReference"`
}

// TimeInfo is the service time extent.
type TimeInfo struct {
	StartTimeField string  `json:"startTimeField"`
	EndTimeField   string  `json:"endTimeField"`
	TimeExtent     []int64 `json:"timeExtent"`
}

func fetchMetadata(ctx context.Context, client *http.Client, serviceURL string) (*Metadata, error) {
	u := task.URL(serviceURL, "", nil) + "?f=json"
	var raw json.RawMessage
	if err := task.GetJSON(ctx, client, u, &raw); err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m.Raw = raw
	return &m, nil
}

// MetadataCache memoizes service metadata across adapters, keyed by service
// URL. Metadata is immutable after first fetch; a re-fetch requires a new
// adapter pointed at an uncached URL or a fresh cache.
type MetadataCache struct {
	lru *lru.Cache[string, *Metadata]
}

// NewMetadataCache creates a cache holding up to size documents.
func NewMetadataCache(size int) *MetadataCache {
	if size <= 0 {
		size = 64
	}
	c, _ := lru.New[string, *Metadata](size)
	return &MetadataCache{lru: c}
}

func (c *MetadataCache) get(url string) (*Metadata, bool) {
	if c == nil || c.lru == nil {
		return nil, false
	}
	m, ok := c.lru.Get(url)
	if ok {
		observability.IncMetadataCacheHit()
	} else {
		observability.IncMetadataCacheMiss()
	}
	return m, ok
}

func (c *MetadataCache) put(url string, m *Metadata) {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Add(url, m)
}

// metadataFlight is the shared in-flight fetch: the first caller starts the
// request, concurrent callers block on done and share the result. This is a
// shared pending future, not a re-entrant guard flag.
type metadataFlight struct {
	done chan struct{}
	meta *Metadata
	err  error
}
