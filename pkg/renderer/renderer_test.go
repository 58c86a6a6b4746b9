package renderer

import (
	"errors"
	"testing"
)

// tier fakes: each implements exactly one capability on top of Renderer

type cacheRefresher struct {
	Renderer
	cleared []string
	updated int
}

func (c *cacheRefresher) ClearTiles(sourceID string) error {
	c.cleared = append(c.cleared, sourceID)
	return nil
}

func (c *cacheRefresher) Update() error {
	c.updated++
	return nil
}

type legacyRefresher struct {
	Renderer
	cleared []string
}

func (l *legacyRefresher) ClearOtherSourceCache(sourceID string) error {
	l.cleared = append(l.cleared, sourceID)
	return nil
}

func TestUpdateTiles_PrefersSetTiles(t *testing.T) {
	f := NewFake()
	if err := f.AddSource("src", SourceDescriptor{Type: "raster", Tiles: []string{"a"}}); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := UpdateTiles(f, "src", []string{"b"}); err != nil {
		t.Fatalf("UpdateTiles: %v", err)
	}
	src, _ := f.GetSource("src")
	if len(src.Tiles) != 1 || src.Tiles[0] != "b" {
		t.Fatalf("tiles not swapped: %+v", src.Tiles)
	}
	if f.SetTilesCalls != 1 {
		t.Fatalf("SetTiles calls = %d", f.SetTilesCalls)
	}
}

func TestUpdateTiles_FallsBackToSourceCache(t *testing.T) {
	c := &cacheRefresher{Renderer: nopRenderer{}}
	if err := UpdateTiles(c, "src", []string{"x"}); err != nil {
		t.Fatalf("UpdateTiles: %v", err)
	}
	if len(c.cleared) != 1 || c.cleared[0] != "src" || c.updated != 1 {
		t.Fatalf("cache path not used: cleared=%v updated=%d", c.cleared, c.updated)
	}
}

func TestUpdateTiles_FallsBackToLegacyPath(t *testing.T) {
	l := &legacyRefresher{Renderer: nopRenderer{}}
	if err := UpdateTiles(l, "src", []string{"x"}); err != nil {
		t.Fatalf("UpdateTiles: %v", err)
	}
	if len(l.cleared) != 1 {
		t.Fatalf("legacy path not used: %v", l.cleared)
	}
}

func TestUpdateTiles_NoCapability(t *testing.T) {
	if err := UpdateTiles(nopRenderer{}, "src", nil); !errors.Is(err, ErrNoTileRefresh) {
		t.Fatalf("want ErrNoTileRefresh, got %v", err)
	}
}

// nopRenderer satisfies Renderer with no optional capabilities.
type nopRenderer struct{}

func (nopRenderer) AddSource(string, SourceDescriptor) error   { return nil }
func (nopRenderer) GetSource(string) (SourceDescriptor, bool)  { return SourceDescriptor{}, false }
func (nopRenderer) RemoveSource(string) error                  { return nil }
func (nopRenderer) AddLayer(LayerSpec, string) error           { return nil }
func (nopRenderer) RemoveLayer(string) error                   { return nil }
func (nopRenderer) GetLayer(string) (LayerSpec, bool)          { return LayerSpec{}, false }
func (nopRenderer) SetPaintProperty(string, string, any) error { return nil }
func (nopRenderer) On(string, func(Event)) func()              { return func() {} }

func TestIsRaceError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrSourceMissing, true},
		{ErrTileAborted, true},
		{errors.New("AbortError: tile request aborted"), true},
		{errors.New("there is no source with id 'dynamic-0'"), true},
		{errors.New("Source \"x\" not found"), true},
		{errors.New("style is not done loading"), false},
		{errors.New("invalid paint property"), false},
	}
	for _, tc := range cases {
		if got := IsRaceError(tc.err); got != tc.want {
			t.Fatalf("IsRaceError(%v) = %v want %v", tc.err, got, tc.want)
		}
	}
}

func TestFake_Listeners(t *testing.T) {
	f := NewFake()
	var seen []string
	off := f.On("error", func(ev Event) { seen = append(seen, ev.SourceID) })
	f.Emit(Event{Type: "error", SourceID: "a"})
	off()
	f.Emit(Event{Type: "error", SourceID: "b"})
	if len(seen) != 1 || seen[0] != "a" {
		t.Fatalf("listener lifecycle wrong: %v", seen)
	}
}

func TestFake_AddLayerBefore(t *testing.T) {
	f := NewFake()
	_ = f.AddLayer(LayerSpec{ID: "base"}, "")
	_ = f.AddLayer(LayerSpec{ID: "top"}, "")
	_ = f.AddLayer(LayerSpec{ID: "mid"}, "top")
	ls := f.Layers()
	if ls[0].ID != "base" || ls[1].ID != "mid" || ls[2].ID != "top" {
		t.Fatalf("order wrong: %v", ls)
	}
}
