// Package renderer defines the boundary to the host map renderer. The
// library never draws; it registers sources and layers through this minimal
// capability set and the host library does the rest.
package renderer

import (
	"errors"
	"strings"
)

// SourceDescriptor is the renderer-facing description of how to fetch one
// service's imagery or vector data. It is purely derived state: adapters
// recompute it from option state on every refresh and never mutate a
// previously pushed value.
type SourceDescriptor struct {
	Type        string   `json:"type"` // raster, vector or geojson
	Tiles       []string `json:"tiles,omitempty"`
	URL         string   `json:"url,omitempty"`
	Data        any      `json:"data,omitempty"`
	TileSize    int      `json:"tileSize,omitempty"`
	Attribution string   `json:"attribution,omitempty"`
}

// LayerSpec is a style layer bound to a registered source.
type LayerSpec struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Source      string         `json:"source"`
	SourceLayer string         `json:"source-layer,omitempty"`
	Filter      []any          `json:"filter,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
	Paint       map[string]any `json:"paint,omitempty"`
}

// Event is a renderer notification delivered to listeners.
type Event struct {
	Type     string
	SourceID string
	Err      error
}

// Renderer is the capability set the adapters consume. Host integrations
// implement this against their map engine version; see the optional
// interfaces below for live tile refresh.
type Renderer interface {
	AddSource(id string, desc SourceDescriptor) error
	GetSource(id string) (SourceDescriptor, bool)
	RemoveSource(id string) error
	AddLayer(spec LayerSpec, beforeID string) error
	RemoveLayer(id string) error
	GetLayer(id string) (LayerSpec, bool)
	SetPaintProperty(id, prop string, value any) error
	// On registers a listener for an event type and returns its remove func.
	On(event string, fn func(Event)) (off func())
}

// TileSetter is the preferred live-refresh capability: swap a source's tile
// URLs in place.
type TileSetter interface {
	SetTiles(sourceID string, tiles []string) error
}

// SourceCacheRefresher is the second-tier capability: drop the source's tile
// cache and force a repaint under the current transform.
type SourceCacheRefresher interface {
	ClearTiles(sourceID string) error
	Update() error
}

// LegacySourceCacheRefresher is the last-resort capability kept for old
// renderer versions that track extra sources off to the side.
type LegacySourceCacheRefresher interface {
	ClearOtherSourceCache(sourceID string) error
}

// AttributionSetter lets an adapter push a service's copyright text to the
// renderer's attribution control. Optional; attribution is cosmetic and
// adapters ignore its absence.
type AttributionSetter interface {
	SetAttribution(sourceID, text string) error
}

// ErrNoTileRefresh reports that the renderer offers none of the live refresh
// capabilities; the caller falls back to remove-and-re-add.
var ErrNoTileRefresh = errors.New("renderer: no live tile refresh capability")

// UpdateTiles pushes new tile URLs through the best capability the renderer
// offers, probing in priority order: SetTiles, then clear-and-update, then
// the legacy cache path.
func UpdateTiles(r Renderer, sourceID string, tiles []string) error {
	if ts, ok := r.(TileSetter); ok {
		return ts.SetTiles(sourceID, tiles)
	}
	if sc, ok := r.(SourceCacheRefresher); ok {
		if err := sc.ClearTiles(sourceID); err != nil {
			return err
		}
		return sc.Update()
	}
	if legacy, ok := r.(LegacySourceCacheRefresher); ok {
		return legacy.ClearOtherSourceCache(sourceID)
	}
	return ErrNoTileRefresh
}

// Sentinel race errors a renderer implementation can return during
// concurrent style mutation.
var (
	ErrSourceMissing = errors.New("renderer: source not found")
	ErrTileAborted   = errors.New("renderer: tile fetch aborted")
)

// IsRaceError reports whether err is an expected-benign renderer error from
// a style/source mutation race: an aborted in-flight tile fetch or a stale
// source handle. Adapters suppress these during refresh and only during
// refresh.
func IsRaceError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSourceMissing) || errors.Is(err, ErrTileAborted) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "abort") {
		return true
	}
	if strings.Contains(msg, "source") &&
		(strings.Contains(msg, "not found") || strings.Contains(msg, "no such") || strings.Contains(msg, "there is no source")) {
		return true
	}
	return false
}
