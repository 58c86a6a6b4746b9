package renderer

import "sync"

// Fake is an in-memory Renderer for tests and host integrations under
// development. It also implements TileSetter unless DisableSetTiles is set,
// which lets tests exercise the capability fallback chain.
type Fake struct {
	mu        sync.Mutex
	sources   map[string]SourceDescriptor
	layers    []LayerSpec
	listeners map[string][]*listener

	// DisableSetTiles makes SetTiles report ErrNoTileRefresh so callers
	// exercise the lower-tier paths.
	DisableSetTiles bool
	// Errors to inject per operation.
	AddSourceErr error
	SetTilesErr  error

	SetTilesCalls  int
	AddSourceCalls int
}

type listener struct {
	fn func(Event)
}

// NewFake creates an empty fake renderer.
func NewFake() *Fake {
	return &Fake{
		sources:   map[string]SourceDescriptor{},
		listeners: map[string][]*listener{},
	}
}

func (f *Fake) AddSource(id string, desc SourceDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AddSourceCalls++
	if f.AddSourceErr != nil {
		return f.AddSourceErr
	}
	f.sources[id] = desc
	return nil
}

func (f *Fake) GetSource(id string) (SourceDescriptor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.sources[id]
	return d, ok
}

func (f *Fake) RemoveSource(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sources[id]; !ok {
		return ErrSourceMissing
	}
	delete(f.sources, id)
	return nil
}

func (f *Fake) AddLayer(spec LayerSpec, beforeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if beforeID != "" {
		for i, l := range f.layers {
			if l.ID == beforeID {
				f.layers = append(f.layers[:i], append([]LayerSpec{spec}, f.layers[i:]...)...)
				return nil
			}
		}
	}
	f.layers = append(f.layers, spec)
	return nil
}

func (f *Fake) RemoveLayer(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range f.layers {
		if l.ID == id {
			f.layers = append(f.layers[:i], f.layers[i+1:]...)
			return nil
		}
	}
	return ErrSourceMissing
}

func (f *Fake) GetLayer(id string) (LayerSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.layers {
		if l.ID == id {
			return l, true
		}
	}
	return LayerSpec{}, false
}

// Layers returns the registered layers in order.
func (f *Fake) Layers() []LayerSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LayerSpec(nil), f.layers...)
}

// SourceCount reports the number of registered sources.
func (f *Fake) SourceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sources)
}

func (f *Fake) SetPaintProperty(id, prop string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range f.layers {
		if l.ID == id {
			if f.layers[i].Paint == nil {
				f.layers[i].Paint = map[string]any{}
			}
			f.layers[i].Paint[prop] = value
			return nil
		}
	}
	return ErrSourceMissing
}

func (f *Fake) SetTiles(sourceID string, tiles []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetTilesCalls++
	if f.DisableSetTiles {
		return ErrNoTileRefresh
	}
	if f.SetTilesErr != nil {
		return f.SetTilesErr
	}
	src, ok := f.sources[sourceID]
	if !ok {
		return ErrSourceMissing
	}
	src.Tiles = append([]string(nil), tiles...)
	f.sources[sourceID] = src
	return nil
}

func (f *Fake) SetAttribution(sourceID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.sources[sourceID]
	if !ok {
		return ErrSourceMissing
	}
	src.Attribution = text
	f.sources[sourceID] = src
	return nil
}

func (f *Fake) On(event string, fn func(Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &listener{fn: fn}
	f.listeners[event] = append(f.listeners[event], l)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		ls := f.listeners[event]
		for i, cand := range ls {
			if cand == l {
				f.listeners[event] = append(ls[:i], ls[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers an event to listeners, for tests.
func (f *Fake) Emit(ev Event) {
	f.mu.Lock()
	ls := append([]*listener(nil), f.listeners[ev.Type]...)
	f.mu.Unlock()
	for _, l := range ls {
		l.fn(ev)
	}
}
