package service

import (
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

// Options is the mutable option state of one adapter. It is owned
// exclusively by that adapter after construction and mutated only through
// the adapter's setters; families ignore the fields that do not apply to
// them.
type Options struct {
	// URL of the service endpoint (MapServer, ImageServer, FeatureServer
	// layer, VectorTileServer). Required; a trailing slash is stripped.
	URL string

	// Layers selects visible sublayers. nil leaves the layers parameter off
	// (server default), an empty non-nil slice shows nothing.
	Layers []int

	// LayerDefs maps sublayer id to a definition expression.
	LayerDefs map[int]string

	Format      string
	Transparent bool
	DPI         int
	TileSize    int

	// From/To bound the service time range. The time parameter is only sent
	// when To is set.
	From *time.Time
	To   *time.Time

	// AttributionFromService controls the async copyright fetch; defaults
	// to true when nil.
	AttributionFromService *bool

	// Image service.
	RenderingRule any
	MosaicRule    any

	// Feature service.
	Where          string
	OutFields      []string
	Geometry       orb.Geometry
	UseVectorTiles *bool // default true
	UseStaticZoom  bool

	// Client used for all REST calls; defaults to the module's tuned
	// outbound client.
	Client *http.Client

	// Logger for refresh/attribution diagnostics; defaults to a discard
	// logger.
	Logger *zerolog.Logger

	// MetadataCache shares fetched service documents across adapters;
	// defaults to a process-wide cache.
	MetadataCache *MetadataCache

	// OnRefreshError receives refresh errors that are not benign renderer
	// races. Optional; unrecognized errors are logged either way.
	OnRefreshError func(error)
}

func (o *Options) attributionEnabled() bool {
	return o.AttributionFromService == nil || *o.AttributionFromService
}

func (o *Options) vectorTilesEnabled() bool {
	return o.UseVectorTiles == nil || *o.UseVectorTiles
}

func (o *Options) normalize() error {
	if strings.TrimSpace(o.URL) == "" {
		return &ConfigurationError{Reason: "service url is required"}
	}
	o.URL = strings.TrimRight(strings.TrimSpace(o.URL), "/")
	if o.Format == "" {
		o.Format = "png24"
	}
	return nil
}

// Bool returns a pointer to v, for the optional boolean options.
func Bool(v bool) *bool { return &v }
