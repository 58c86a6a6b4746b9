// Package dynlayer maintains per-sublayer override records for the ArcGIS
// dynamicLayers export parameter.
package dynlayer

import (
	"encoding/json"

	"github.com/muimsd/esri-go/pkg/filter"
)

// Source points one override at a sublayer of the parent map service.
type Source struct {
	Type       string `json:"type"`
	MapLayerID int    `json:"mapLayerId"`
}

// MapLayerSource is the source record for sublayer id.
func MapLayerSource(id int) *Source {
	return &Source{Type: "mapLayer", MapLayerID: id}
}

// DrawingInfo carries the server-side style override for one sublayer.
// Renderer and LabelingInfo are arbitrary esri JSON objects; the set never
// interprets them, it only merges and serializes them.
type DrawingInfo struct {
	Renderer     any   `json:"renderer,omitempty"`
	LabelingInfo []any `json:"labelingInfo,omitempty"`
}

// Layer is one override record. The client-facing field Visible serializes
// as the wire field "visibility"; a nil Visible omits the field, a non-nil
// false is sent explicitly.
type Layer struct {
	ID                   int          `json:"id"`
	Source               *Source      `json:"source,omitempty"`
	DefinitionExpression string       `json:"definitionExpression,omitempty"`
	DrawingInfo          *DrawingInfo `json:"drawingInfo,omitempty"`
	Visible              *bool        `json:"visibility,omitempty"`
	LayerTimeOptions     any          `json:"layerTimeOptions,omitempty"`
}

// Bool returns a pointer to v, for the Visible field.
func Bool(v bool) *bool { return &v }

func cloneLayer(l Layer) Layer {
	if l.DrawingInfo != nil {
		di := *l.DrawingInfo
		if di.LabelingInfo != nil {
			di.LabelingInfo = append([]any(nil), di.LabelingInfo...)
		}
		l.DrawingInfo = &di
	}
	if l.Visible != nil {
		v := *l.Visible
		l.Visible = &v
	}
	if l.Source != nil {
		s := *l.Source
		l.Source = &s
	}
	return l
}

func cloneLayers(ls []Layer) []Layer {
	out := make([]Layer, len(ls))
	for i, l := range ls {
		out[i] = cloneLayer(l)
	}
	return out
}

// Set is the ordered collection of override records for one service. Ids are
// unique within the set; mutations upsert by id. The zero value is ready to
// use.
//
// A Set optionally runs in transaction mode: Begin snapshots current state
// into a staging buffer, mutations then apply to the buffer, and Commit
// promotes it while Rollback discards it. Only one transaction is open at a
// time; a nested Begin silently restarts the transaction, discarding the
// previous buffer.
type Set struct {
	layers  []Layer
	staging []Layer
	inTx    bool
}

// New creates a set seeded with the given override records, last write per id
// winning.
func New(layers ...Layer) *Set {
	s := &Set{}
	for _, l := range layers {
		*s.upsert(l.ID) = cloneLayer(l)
	}
	return s
}

func (s *Set) current() *[]Layer {
	if s.inTx {
		return &s.staging
	}
	return &s.layers
}

func (s *Set) upsert(id int) *Layer {
	cur := s.current()
	for i := range *cur {
		if (*cur)[i].ID == id {
			return &(*cur)[i]
		}
	}
	*cur = append(*cur, Layer{ID: id})
	return &(*cur)[len(*cur)-1]
}

func (s *Set) find(id int) *Layer {
	cur := s.current()
	for i := range *cur {
		if (*cur)[i].ID == id {
			return &(*cur)[i]
		}
	}
	return nil
}

// Len reports the number of override records in the effective state.
func (s *Set) Len() int { return len(*s.current()) }

// IDs returns the record ids in order.
func (s *Set) IDs() []int {
	cur := *s.current()
	out := make([]int, len(cur))
	for i, l := range cur {
		out[i] = l.ID
	}
	return out
}

// Layers returns a deep copy of the effective override records.
func (s *Set) Layers() []Layer { return cloneLayers(*s.current()) }

// Layer returns a copy of the record for id.
func (s *Set) Layer(id int) (Layer, bool) {
	if l := s.find(id); l != nil {
		return cloneLayer(*l), true
	}
	return Layer{}, false
}

// Replace swaps in a whole new record list, dropping any open transaction
// staging along with it.
func (s *Set) Replace(layers []Layer) {
	s.inTx = false
	s.staging = nil
	s.layers = nil
	for _, l := range layers {
		*s.upsert(l.ID) = cloneLayer(l)
	}
}

// SetVisibility records a visibility override for sublayer id.
func (s *Set) SetVisibility(id int, visible bool) {
	s.upsert(id).Visible = Bool(visible)
}

// SetDefinition records a definition expression (SQL where) for sublayer id.
func (s *Set) SetDefinition(id int, expr string) {
	s.upsert(id).DefinitionExpression = expr
}

// SetFilter compiles f and records it as the definition expression. A filter
// carrying no constraint is a no-op, leaving any previous expression intact.
func (s *Set) SetFilter(id int, f filter.Filter) {
	clause, ok := filter.Compile(f)
	if !ok {
		return
	}
	s.SetDefinition(id, clause)
}

// SetRenderer records a renderer override, preserving any labeling already
// applied to the same sublayer.
func (s *Set) SetRenderer(id int, renderer any) {
	s.MergeDrawingInfo(id, DrawingInfo{Renderer: renderer})
}

// MergeDrawingInfo shallow-merges info into the existing drawing info for id:
// only the fields set in info are replaced, sibling fields survive. Setting a
// renderer after labels (or labels after a renderer) keeps both.
func (s *Set) MergeDrawingInfo(id int, info DrawingInfo) {
	l := s.upsert(id)
	if l.DrawingInfo == nil {
		l.DrawingInfo = &DrawingInfo{}
	}
	if info.Renderer != nil {
		l.DrawingInfo.Renderer = info.Renderer
	}
	if info.LabelingInfo != nil {
		l.DrawingInfo.LabelingInfo = append([]any(nil), info.LabelingInfo...)
	}
}

// SetLabels replaces the labeling for id with a single label class.
func (s *Set) SetLabels(id int, labelInfo any) {
	s.MergeDrawingInfo(id, DrawingInfo{LabelingInfo: []any{labelInfo}})
}

// SetLabelsVisible toggles labeling for id. False removes the labeling key
// entirely (the renderer override, if any, stays). True with no labeling
// configured synthesizes a default text symbol labeling [OBJECTID].
func (s *Set) SetLabelsVisible(id int, visible bool) {
	if !visible {
		if l := s.find(id); l != nil && l.DrawingInfo != nil {
			l.DrawingInfo.LabelingInfo = nil
		}
		return
	}
	l := s.upsert(id)
	if l.DrawingInfo != nil && len(l.DrawingInfo.LabelingInfo) > 0 {
		return
	}
	s.SetLabels(id, DefaultLabeling())
}

// SetTimeOptions records per-sublayer time options.
func (s *Set) SetTimeOptions(id int, opts any) {
	s.upsert(id).LayerTimeOptions = opts
}

// DefaultLabeling is the labeling synthesized by SetLabelsVisible(id, true)
// when the sublayer has no labeling configured.
func DefaultLabeling() map[string]any {
	return map[string]any{
		"labelExpression": "[OBJECTID]",
		"labelPlacement":  "esriServerPointLabelPlacementAboveRight",
		"symbol": map[string]any{
			"type":      "esriTS",
			"color":     []int{255, 255, 255, 255},
			"haloColor": []int{0, 0, 0, 255},
			"haloSize":  1,
			"font": map[string]any{
				"family": "Arial",
				"size":   11,
			},
		},
	}
}

// Op is one mutation of a Set, for batch application.
type Op func(*Set)

// Visibility is SetVisibility as a batch op.
func Visibility(id int, visible bool) Op { return func(s *Set) { s.SetVisibility(id, visible) } }

// Definition is SetDefinition as a batch op.
func Definition(id int, expr string) Op { return func(s *Set) { s.SetDefinition(id, expr) } }

// WithFilter is SetFilter as a batch op.
func WithFilter(id int, f filter.Filter) Op { return func(s *Set) { s.SetFilter(id, f) } }

// Renderer is SetRenderer as a batch op.
func Renderer(id int, r any) Op { return func(s *Set) { s.SetRenderer(id, r) } }

// Labels is SetLabels as a batch op.
func Labels(id int, labelInfo any) Op { return func(s *Set) { s.SetLabels(id, labelInfo) } }

// TimeOptions is SetTimeOptions as a batch op.
func TimeOptions(id int, opts any) Op { return func(s *Set) { s.SetTimeOptions(id, opts) } }

// ApplyBatch applies ops in list order; the last op per id per field wins.
func (s *Set) ApplyBatch(ops []Op) {
	for _, op := range ops {
		if op != nil {
			op(s)
		}
	}
}

// Begin opens a transaction, snapshotting current state into the staging
// buffer. Calling Begin with a transaction already open restarts it and the
// previous buffer is lost.
func (s *Set) Begin() {
	s.staging = cloneLayers(s.layers)
	s.inTx = true
}

// Commit promotes the staging buffer. It reports whether a transaction was
// open; the caller triggers exactly one refresh on true.
func (s *Set) Commit() bool {
	if !s.inTx {
		return false
	}
	s.layers = s.staging
	s.staging = nil
	s.inTx = false
	return true
}

// Rollback discards the staging buffer with no other effect.
func (s *Set) Rollback() {
	s.staging = nil
	s.inTx = false
}

// InTransaction reports whether a transaction is open.
func (s *Set) InTransaction() bool { return s.inTx }

// EnsureVisible re-establishes the derived-completeness invariant: every
// currently-visible sublayer missing from the set gets a {id, visible:true}
// record appended. Existing records are untouched.
func (s *Set) EnsureVisible(visibleIDs []int) {
	for _, id := range visibleIDs {
		if s.find(id) == nil {
			s.upsert(id).Visible = Bool(true)
		}
	}
}

// Serialize ensures every visible sublayer is present, then returns the wire
// records. The returned slice is a copy.
func (s *Set) Serialize(visibleIDs []int) []Layer {
	s.EnsureVisible(visibleIDs)
	return s.Layers()
}

// MarshalFor is Serialize rendered to the JSON value of the dynamicLayers
// query parameter.
func (s *Set) MarshalFor(visibleIDs []int) ([]byte, error) {
	return json.Marshal(s.Serialize(visibleIDs))
}
