// Package service adapts ArcGIS Server REST services into renderer map
// sources and exposes the query/identify/find task helpers against them.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/muimsd/esri-go/internal/httpclient"
	"github.com/muimsd/esri-go/internal/logger"
	"github.com/muimsd/esri-go/internal/observability"
	"github.com/muimsd/esri-go/pkg/dynlayer"
	"github.com/muimsd/esri-go/pkg/filter"
	"github.com/muimsd/esri-go/pkg/renderer"
)

var (
	defaultClient        = httpclient.New()
	defaultMetadataCache = NewMetadataCache(64)
)

// Adapter owns one renderer source backed by one ArcGIS service. Option
// state is mutated through the setters below; every mutation synchronously
// updates in-memory state and schedules a coalesced renderer refresh that
// re-derives the source descriptor from scratch.
//
// Lifecycle: construction registers the source; Remove unregisters it and is
// terminal. Mutators on a removed adapter are no-ops; task calls return
// ErrRemoved.
type Adapter struct {
	sourceID string
	rend     renderer.Renderer
	strat    strategy
	override []func(*renderer.SourceDescriptor)

	mu          sync.Mutex
	opts        Options
	dyn         *dynlayer.Set
	removed     bool
	lastHash    uint64
	boundLayers []string

	deb       *debouncer
	client    *http.Client
	log       zerolog.Logger
	metaCache *MetadataCache

	metaMu     sync.Mutex
	metaFlight *metadataFlight
}

func newAdapter(sourceID string, r renderer.Renderer, strat strategy, opts Options, override []func(*renderer.SourceDescriptor)) (*Adapter, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if sourceID == "" {
		return nil, &ConfigurationError{Reason: "source id is required"}
	}
	if r == nil {
		return nil, &ConfigurationError{Reason: "renderer is required"}
	}

	a := &Adapter{
		sourceID:  sourceID,
		rend:      r,
		strat:     strat,
		override:  override,
		opts:      opts,
		dyn:       dynlayer.New(),
		deb:       newDebouncer(),
		metaCache: opts.MetadataCache,
	}
	if a.client = opts.Client; a.client == nil {
		a.client = defaultClient
	}
	if opts.Logger != nil {
		a.log = opts.Logger.With().Str("component", strat.family()).Str("source_id", sourceID).Logger()
	} else {
		a.log = logger.Discard()
	}
	if a.metaCache == nil {
		a.metaCache = defaultMetadataCache
	}

	desc := a.descriptorLocked()
	a.lastHash = hashDescriptor(desc)

	// tolerate being constructed twice for the same id
	if _, ok := r.GetSource(sourceID); !ok {
		if err := r.AddSource(sourceID, desc); err != nil {
			return nil, err
		}
	}

	if a.opts.attributionEnabled() {
		go a.fetchAttribution()
	}
	return a, nil
}

// descriptorLocked derives the current source descriptor. Callers hold no
// lock during construction; afterwards a.mu must be held.
func (a *Adapter) descriptorLocked() renderer.SourceDescriptor {
	desc := a.strat.sourceDescriptor(&a.opts, a.dyn)
	for _, fn := range a.override {
		if fn != nil {
			fn(&desc)
		}
	}
	return desc
}

func hashDescriptor(desc renderer.SourceDescriptor) uint64 {
	b, err := json.Marshal(desc)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(b)
}

// SourceID is the renderer source this adapter owns.
func (a *Adapter) SourceID() string { return a.sourceID }

// Family names the service family, e.g. "MapService".
func (a *Adapter) Family() string { return a.strat.family() }

// Options returns a copy of the current option state. Reads here always see
// the latest mutation even while a refresh is still pending.
func (a *Adapter) Options() Options {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opts
}

// DynamicLayers returns a copy of the current override records.
func (a *Adapter) DynamicLayers() []dynlayer.Layer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dyn.Layers()
}

func (a *Adapter) isRemoved() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.removed
}

func (a *Adapter) serviceURL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opts.URL
}

// ---- refresh machinery ----

func (a *Adapter) scheduleRefresh() {
	a.deb.Schedule(a.applyRefresh)
}

// applyRefresh re-derives the descriptor and pushes it to the renderer. A
// descriptor identical to the last applied one is skipped; benign renderer
// race errors are suppressed; anything else is logged and handed to
// OnRefreshError.
func (a *Adapter) applyRefresh() {
	a.mu.Lock()
	if a.removed {
		a.mu.Unlock()
		return
	}
	desc := a.descriptorLocked()
	h := hashDescriptor(desc)
	if h == a.lastHash {
		a.mu.Unlock()
		observability.IncRefresh("skipped")
		return
	}
	onErr := a.opts.OnRefreshError
	a.mu.Unlock()

	// lastHash records the last descriptor the renderer accepted, so a
	// failed push must leave it untouched and let the next mutation retry.
	err := a.pushDescriptor(desc)
	switch {
	case err == nil:
		observability.IncRefresh("applied")
		a.setLastHash(h)
	case renderer.IsRaceError(err):
		observability.IncRefresh("suppressed_race")
		a.log.Debug().Err(err).Msg("suppressed renderer race during refresh")
		a.setLastHash(h)
	default:
		a.log.Error().Err(err).Msg("source refresh failed")
		if onErr != nil {
			onErr(err)
		}
	}
}

func (a *Adapter) setLastHash(h uint64) {
	a.mu.Lock()
	a.lastHash = h
	a.mu.Unlock()
}

func (a *Adapter) pushDescriptor(desc renderer.SourceDescriptor) error {
	if len(desc.Tiles) > 0 {
		if _, ok := a.rend.GetSource(a.sourceID); ok {
			err := renderer.UpdateTiles(a.rend, a.sourceID, desc.Tiles)
			if err == nil {
				return nil
			}
			if !errors.Is(err, renderer.ErrNoTileRefresh) && !renderer.IsRaceError(err) {
				return err
			}
			// fall back to re-registering the source
		}
	}
	if _, ok := a.rend.GetSource(a.sourceID); ok {
		if err := a.rend.RemoveSource(a.sourceID); err != nil && !renderer.IsRaceError(err) {
			return err
		}
	}
	return a.rend.AddSource(a.sourceID, desc)
}

// Update forces an immediate refresh, bypassing both the debounce window and
// the unchanged-descriptor skip.
func (a *Adapter) Update() {
	a.deb.Cancel()
	a.mu.Lock()
	a.lastHash = 0
	a.mu.Unlock()
	a.applyRefresh()
}

// Remove unregisters the source and any layers bound through BindLayer.
// Idempotent: calling it twice is harmless. The adapter is unusable
// afterwards.
func (a *Adapter) Remove() {
	a.mu.Lock()
	if a.removed {
		a.mu.Unlock()
		return
	}
	a.removed = true
	layers := a.boundLayers
	a.boundLayers = nil
	a.mu.Unlock()

	a.deb.Cancel()
	for _, id := range layers {
		if err := a.rend.RemoveLayer(id); err != nil && !renderer.IsRaceError(err) {
			a.log.Warn().Err(err).Str("layer", id).Msg("remove bound layer")
		}
	}
	if _, ok := a.rend.GetSource(a.sourceID); ok {
		if err := a.rend.RemoveSource(a.sourceID); err != nil && !renderer.IsRaceError(err) {
			a.log.Warn().Err(err).Msg("remove source")
		}
	}
}

// BindLayer adds a style layer bound to this adapter's source and remembers
// it so Remove tears it down.
func (a *Adapter) BindLayer(spec renderer.LayerSpec, beforeID string) error {
	a.mu.Lock()
	if a.removed {
		a.mu.Unlock()
		return ErrRemoved
	}
	a.mu.Unlock()
	spec.Source = a.sourceID
	if err := a.rend.AddLayer(spec, beforeID); err != nil {
		return err
	}
	a.mu.Lock()
	a.boundLayers = append(a.boundLayers, spec.ID)
	a.mu.Unlock()
	return nil
}

// ---- option mutators ----

// mutate applies fn under the lock and schedules a refresh unless the
// adapter is removed.
func (a *Adapter) mutate(fn func()) {
	a.mu.Lock()
	if a.removed {
		a.mu.Unlock()
		return
	}
	fn()
	a.mu.Unlock()
	a.scheduleRefresh()
}

// mutateDyn applies a dynamic-layer mutation. Inside a transaction the
// / refresh is withheld: staged overrides only become renderer-visible on
// Commit.
func (a *Adapter) mutateDyn(fn func()) {
	a.mu.Lock()
	if a.removed {
		a.mu.Unlock()
		return
	}
	fn()
	inTx := a.dyn.InTransaction()
	a.mu.Unlock()
	if !inTx {
		a.scheduleRefresh()
	}
}

// SetLayers replaces the visible sublayer selection.
func (a *Adapter) SetLayers(layers []int) {
	a.mutate(func() { a.opts.Layers = layers })
}

// SetLayerDefs replaces the per-sublayer definition expressions. A nil map
// disables the parameter.
func (a *Adapter) SetLayerDefs(defs map[int]string) {
	a.mutate(func() { a.opts.LayerDefs = defs })
}

// SetDate sets the service time range. A from without a to produces no time
// parameter (behavior kept from the original adapters).
func (a *Adapter) SetDate(from, to *time.Time) {
	a.mutate(func() { a.opts.From, a.opts.To = from, to })
}

// SetFormat changes the export image format.
func (a *Adapter) SetFormat(format string) {
	a.mutate(func() { a.opts.Format = format })
}

// SetTransparent toggles export transparency.
func (a *Adapter) SetTransparent(transparent bool) {
	a.mutate(func() { a.opts.Transparent = transparent })
}

// SetRenderingRule sets the Image service rendering rule.
func (a *Adapter) SetRenderingRule(rule any) {
	a.mutate(func() { a.opts.RenderingRule = rule })
}

// SetMosaicRule sets the Image service mosaic rule.
func (a *Adapter) SetMosaicRule(rule any) {
	a.mutate(func() { a.opts.MosaicRule = rule })
}

// SetWhere sets the feature query where clause.
func (a *Adapter) SetWhere(where string) {
	a.mutate(func() { a.opts.Where = where })
}

// SetOutFields sets the feature query output fields.
func (a *Adapter) SetOutFields(fields []string) {
	a.mutate(func() { a.opts.OutFields = fields })
}

// SetGeometry restricts the feature query spatially.
func (a *Adapter) SetGeometry(g orb.Geometry) {
	a.mutate(func() { a.opts.Geometry = g })
}

// ClearGeometry removes the spatial restriction.
func (a *Adapter) ClearGeometry() {
	a.mutate(func() { a.opts.Geometry = nil })
}

// SetDynamicLayers replaces the whole override record list. A nil slice
// disables dynamic layers.
func (a *Adapter) SetDynamicLayers(layers []dynlayer.Layer) {
	a.mutate(func() { a.dyn.Replace(layers) })
}

// SetLayerVisibility overrides one sublayer's visibility.
func (a *Adapter) SetLayerVisibility(id int, visible bool) {
	a.mutateDyn(func() { a.dyn.SetVisibility(id, visible) })
}

// SetLayerDefinition overrides one sublayer's definition expression.
func (a *Adapter) SetLayerDefinition(id int, expr string) {
	a.mutateDyn(func() { a.dyn.SetDefinition(id, expr) })
}

// SetLayerFilter compiles f and applies it as the sublayer's definition
// expression; a filter with no constraint is a no-op.
func (a *Adapter) SetLayerFilter(id int, f filter.Filter) {
	a.mutateDyn(func() { a.dyn.SetFilter(id, f) })
}

// SetLayerRenderer overrides one sublayer's renderer, keeping labels.
func (a *Adapter) SetLayerRenderer(id int, rend any) {
	a.mutateDyn(func() { a.dyn.SetRenderer(id, rend) })
}

// MergeLayerDrawingInfo merges symbology overrides into one sublayer,
// keeping the parts the incoming info does not set.
func (a *Adapter) MergeLayerDrawingInfo(id int, info dynlayer.DrawingInfo) {
	a.mutateDyn(func() { a.dyn.MergeDrawingInfo(id, info) })
}

// SetLayerLabels replaces one sublayer's labeling with a single label class.
func (a *Adapter) SetLayerLabels(id int, labelInfo any) {
	a.mutateDyn(func() { a.dyn.SetLabels(id, labelInfo) })
}

// SetLayerLabelsVisible toggles one sublayer's labeling.
func (a *Adapter) SetLayerLabelsVisible(id int, visible bool) {
	a.mutateDyn(func() { a.dyn.SetLabelsVisible(id, visible) })
}

// SetLayerTimeOptions overrides one sublayer's time options.
func (a *Adapter) SetLayerTimeOptions(id int, opts any) {
	a.mutateDyn(func() { a.dyn.SetTimeOptions(id, opts) })
}

// ApplyBatch applies several override mutations and refreshes once.
func (a *Adapter) ApplyBatch(ops []dynlayer.Op) {
	a.mutateDyn(func() { a.dyn.ApplyBatch(ops) })
}

// ---- transactions ----

// Begin opens an override transaction: subsequent sublayer mutations stage
// without touching the renderer until Commit. A Begin during an open
// transaction silently restarts it.
func (a *Adapter) Begin() {
	a.mu.Lock()
	if !a.removed {
		a.dyn.Begin()
	}
	a.mu.Unlock()
}

// Commit promotes staged overrides and triggers exactly one refresh.
func (a *Adapter) Commit() {
	a.mu.Lock()
	committed := !a.removed && a.dyn.Commit()
	a.mu.Unlock()
	if committed {
		a.scheduleRefresh()
	}
}

// Rollback discards staged overrides with no refresh.
func (a *Adapter) Rollback() {
	a.mu.Lock()
	a.dyn.Rollback()
	a.mu.Unlock()
}

// InTransaction reports whether an override transaction is open.
func (a *Adapter) InTransaction() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dyn.InTransaction()
}

// ---- metadata ----

// Metadata fetches the service document once per adapter lifetime.
// Concurrent calls before resolution share the same in-flight fetch; a
// failed fetch is retried by the next call.
func (a *Adapter) Metadata(ctx context.Context) (*Metadata, error) {
	if a.isRemoved() {
		return nil, ErrRemoved
	}
	url := a.serviceURL()
	if m, ok := a.metaCache.get(url); ok {
		return m, nil
	}

	a.metaMu.Lock()
	fl := a.metaFlight
	if fl == nil {
		fl = &metadataFlight{done: make(chan struct{})}
		a.metaFlight = fl
		go func() {
			fctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			fl.meta, fl.err = fetchMetadata(fctx, a.client, url)
			if fl.err == nil {
				a.metaCache.put(url, fl.meta)
			}
			close(fl.done)
		}()
	}
	a.metaMu.Unlock()

	select {
	case <-fl.done:
		if fl.err != nil {
			a.metaMu.Lock()
			if a.metaFlight == fl {
				a.metaFlight = nil
			}
			a.metaMu.Unlock()
			return nil, fl.err
		}
		return fl.meta, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetchAttribution pushes the service copyright to the renderer's
// attribution control. Attribution is cosmetic: every failure here is
// logged and swallowed.
func (a *Adapter) fetchAttribution() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	m, err := a.Metadata(ctx)
	if err != nil {
		a.log.Debug().Err(err).Msg("attribution metadata fetch failed")
		return
	}
	if m.CopyrightText == "" {
		return
	}
	setter, ok := a.rend.(renderer.AttributionSetter)
	if !ok {
		return
	}
	if err := setter.SetAttribution(a.sourceID, m.CopyrightText); err != nil {
		a.log.Debug().Err(err).Msg("set attribution failed")
	}
}
