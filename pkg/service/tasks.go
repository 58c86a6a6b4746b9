package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/muimsd/esri-go/internal/observability"
	"github.com/muimsd/esri-go/pkg/task"
)

// observeTask wraps a one-shot REST call with upstream metrics. Unlike
// refreshes, task failures always propagate to the caller.
func (a *Adapter) observeTask(endpoint string, start time.Time, err error) {
	observability.ObserveUpstream(a.Family(), endpoint, time.Since(start).Seconds())
	if err != nil {
		kind := "transport"
		switch err.(type) {
		case *task.ServerError:
			kind = "server"
		case *task.TransportError:
			kind = "status"
		}
		observability.IncTaskError(a.Family(), endpoint, kind)
	}
}

// IdentifyRequest carries the per-call inputs of an identify; the layer
// selection, definition expressions, dynamic overrides and time range come
// from the adapter's current option state.
type IdentifyRequest struct {
	MapExtent      orb.Bound
	DisplayWidth   int
	DisplayHeight  int
	Tolerance      int
	ReturnGeometry bool
}

// IdentifyResult is one feature hit from an identify call.
type IdentifyResult struct {
	LayerID          int             `json:"layerId"`
	LayerName        string          `json:"layerName"`
	DisplayFieldName string          `json:"displayFieldName"`
	Value            string          `json:"value"`
	Attributes       map[string]any  `json:"attributes"`
	GeometryType     string          `json:"geometryType"`
	Geometry         json.RawMessage `json:"geometry"`
}

// IdentifyResponse is the parsed identify payload.
type IdentifyResponse struct {
	Results []IdentifyResult `json:"results"`
}

// Identify runs the identify task at p against the service with the
// adapter's current layer/filter/time state.
func (a *Adapter) Identify(ctx context.Context, p orb.Point, req IdentifyRequest) (*IdentifyResponse, error) {
	if a.isRemoved() {
		return nil, ErrRemoved
	}
	a.mu.Lock()
	o := task.IdentifyOptions{
		Point:          p,
		MapExtent:      req.MapExtent,
		DisplayWidth:   req.DisplayWidth,
		DisplayHeight:  req.DisplayHeight,
		Tolerance:      req.Tolerance,
		ReturnGeometry: req.ReturnGeometry,
		Layers:         a.opts.Layers,
		LayerDefs:      a.opts.LayerDefs,
		Time:           task.TimeRange{From: a.opts.From, To: a.opts.To},
	}
	if a.dyn.Len() > 0 {
		if b, err := a.dyn.MarshalFor(a.opts.Layers); err == nil {
			o.DynamicLayers = b
		}
	}
	url := task.URL(a.opts.URL, "identify", task.IdentifyParams(o))
	a.mu.Unlock()

	start := time.Now()
	var out IdentifyResponse
	err := task.GetJSON(ctx, a.client, url, &out)
	a.observeTask("identify", start, err)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindRequest carries the inputs of a find call.
type FindRequest struct {
	Text           string
	Contains       bool
	SearchFields   []string
	Layers         []int
	ReturnGeometry bool
}

// FindResult is one hit from a find call.
type FindResult struct {
	LayerID        int             `json:"layerId"`
	LayerName      string          `json:"layerName"`
	FoundFieldName string          `json:"foundFieldName"`
	Value          string          `json:"value"`
	Attributes     map[string]any  `json:"attributes"`
	GeometryType   string          `json:"geometryType"`
	Geometry       json.RawMessage `json:"geometry"`
}

// FindResponse is the parsed find payload.
type FindResponse struct {
	Results []FindResult `json:"results"`
}

// Find searches attribute values across the service's sublayers.
func (a *Adapter) Find(ctx context.Context, req FindRequest) (*FindResponse, error) {
	if a.isRemoved() {
		return nil, ErrRemoved
	}
	a.mu.Lock()
	layers := req.Layers
	if layers == nil {
		layers = a.opts.Layers
	}
	o := task.FindOptions{
		SearchText:     req.Text,
		Contains:       req.Contains,
		SearchFields:   req.SearchFields,
		Layers:         layers,
		LayerDefs:      a.opts.LayerDefs,
		Time:           task.TimeRange{From: a.opts.From, To: a.opts.To},
		ReturnGeometry: req.ReturnGeometry,
	}
	if a.dyn.Len() > 0 {
		if b, err := a.dyn.MarshalFor(a.opts.Layers); err == nil {
			o.DynamicLayers = b
		}
	}
	url := task.URL(a.opts.URL, "find", task.FindParams(o))
	a.mu.Unlock()

	start := time.Now()
	var out FindResponse
	err := task.GetJSON(ctx, a.client, url, &out)
	a.observeTask("find", start, err)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryFeatures runs a feature query against the adapter's layer URL and
// parses the GeoJSON result. A nil override queries with the adapter's
// current where/outFields/geometry state.
func (a *Adapter) QueryFeatures(ctx context.Context, override *task.QueryOptions) (*geojson.FeatureCollection, error) {
	if a.isRemoved() {
		return nil, ErrRemoved
	}
	a.mu.Lock()
	q := task.QueryOptions{
		Where:          a.opts.Where,
		OutFields:      a.opts.OutFields,
		Geometry:       a.opts.Geometry,
		ReturnGeometry: true,
	}
	if override != nil {
		q = *override
	}
	q.Format = "geojson"
	url := task.URL(a.opts.URL, "query", task.QueryParams(q))
	a.mu.Unlock()

	start := time.Now()
	body, _, err := task.GetBytes(ctx, a.client, url)
	a.observeTask("query", start, err)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("parse feature collection: %w", err)
	}
	return fc, nil
}

// LayerStatistics runs a statistics query. A layerID below zero queries the
// adapter URL directly (FeatureServer layer adapters); otherwise the
// sublayer endpoint {url}/{id}/query is used. Each returned map is one
// result row's attributes.
func (a *Adapter) LayerStatistics(ctx context.Context, layerID int, where string, stats []task.Statistic, groupBy []string) ([]map[string]any, error) {
	if a.isRemoved() {
		return nil, ErrRemoved
	}
	endpoint := "query"
	if layerID >= 0 {
		endpoint = strconv.Itoa(layerID) + "/query"
	}
	url := task.URL(a.serviceURL(), endpoint, task.StatisticsParams(where, stats, groupBy))

	start := time.Now()
	var out struct {
		Features []struct {
			Attributes map[string]any `json:"attributes"`
		} `json:"features"`
	}
	err := task.GetJSON(ctx, a.client, url, &out)
	a.observeTask("statistics", start, err)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(out.Features))
	for i, f := range out.Features {
		rows[i] = f.Attributes
	}
	return rows, nil
}

// ExportMapImage renders the current layer/filter state over extent at the
// given pixel size and returns the raw image bytes.
func (a *Adapter) ExportMapImage(ctx context.Context, extent orb.Bound, width, height int) ([]byte, error) {
	if a.isRemoved() {
		return nil, ErrRemoved
	}
	a.mu.Lock()
	eo := exportOptions(&a.opts, a.dyn)
	eo.Size = [2]int{width, height}
	params := task.ExportParams(eo)
	endpoint := "export"
	if a.strat.family() == "ImageService" {
		endpoint = "exportImage"
	}
	url := a.opts.URL
	a.mu.Unlock()

	coords := make([]string, 0, 4)
	for _, f := range []float64{extent.Min.Lon(), extent.Min.Lat(), extent.Max.Lon(), extent.Max.Lat()} {
		coords = append(coords, strconv.FormatFloat(f, 'f', -1, 64))
	}
	params.Set("bbox", strings.Join(coords, ","))
	params.Set("bboxSR", strconv.Itoa(task.WGS84))
	full := task.URL(url, endpoint, params)

	start := time.Now()
	body, _, err := task.GetBytes(ctx, a.client, full)
	a.observeTask(endpoint, start, err)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// LegendItem is one swatch of a sublayer legend.
type LegendItem struct {
	Label       string `json:"label"`
	URL         string `json:"url"`
	ImageData   string `json:"imageData"`
	ContentType string `json:"contentType"`
	Height      int    `json:"height"`
	Width       int    `json:"width"`
}

// LegendLayer is one sublayer's legend entries.
type LegendLayer struct {
	LayerID   int          `json:"layerId"`
	LayerName string       `json:"layerName"`
	LayerType string       `json:"layerType"`
	Legend    []LegendItem `json:"legend"`
}

// GenerateLegend fetches the service legend.
func (a *Adapter) GenerateLegend(ctx context.Context) ([]LegendLayer, error) {
	if a.isRemoved() {
		return nil, ErrRemoved
	}
	url := task.URL(a.serviceURL(), "legend", nil) + "?f=json"

	start := time.Now()
	var out struct {
		Layers []LegendLayer `json:"layers"`
	}
	err := task.GetJSON(ctx, a.client, url, &out)
	a.observeTask("legend", start, err)
	if err != nil {
		return nil, err
	}
	return out.Layers, nil
}

// DiscoverLayers lists the sublayers advertised by the service document.
func (a *Adapter) DiscoverLayers(ctx context.Context) ([]LayerInfo, error) {
	m, err := a.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return m.Layers, nil
}

// LayerInfo fetches one sublayer's document from {url}/{id}.
func (a *Adapter) LayerInfo(ctx context.Context, layerID int) (*LayerInfo, error) {
	if a.isRemoved() {
		return nil, ErrRemoved
	}
	url := task.URL(a.serviceURL(), strconv.Itoa(layerID), nil) + "?f=json"

	start := time.Now()
	var out LayerInfo
	err := task.GetJSON(ctx, a.client, url, &out)
	a.observeTask("layer", start, err)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LayerFields lists one sublayer's attribute fields.
func (a *Adapter) LayerFields(ctx context.Context, layerID int) ([]Field, error) {
	info, err := a.LayerInfo(ctx, layerID)
	if err != nil {
		return nil, err
	}
	return info.Fields, nil
}

// LayerExtent returns one sublayer's full extent.
func (a *Adapter) LayerExtent(ctx context.Context, layerID int) (*Extent, error) {
	info, err := a.LayerInfo(ctx, layerID)
	if err != nil {
		return nil, err
	}
	if info.Extent == nil {
		return nil, fmt.Errorf("layer %d reports no extent", layerID)
	}
	return info.Extent, nil
}
