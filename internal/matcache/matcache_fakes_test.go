package matcache

import (
	"context"
	"sync"
	"time"
)

// fakeCatalogView and fakeCatalogService ground CatalogService behavior on
// a plain map lookup; ClearCaches just records that it was called so tests
// can assert the view was released.
type fakeCatalogView struct {
	configs map[string]*DatasetConfig
	cleared bool
}

func (v *fakeCatalogView) DatasetConfig(key string) (*DatasetConfig, bool) {
	cfg, ok := v.configs[key]
	return cfg, ok
}

func (v *fakeCatalogView) ClearCaches() { v.cleared = true }

type fakeCatalogService struct {
	mu      sync.Mutex
	configs map[string]*DatasetConfig
	views   []*fakeCatalogView
}

func newFakeCatalogService() *fakeCatalogService {
	return &fakeCatalogService{configs: make(map[string]*DatasetConfig)}
}

func (s *fakeCatalogService) NewView(ctx context.Context) (CatalogView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &fakeCatalogView{configs: s.configs}
	s.views = append(s.views, v)
	return v, nil
}

func (s *fakeCatalogService) setConfig(key string, schema *Schema, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[key] = &DatasetConfig{Schema: schema, Tag: tag}
}

type fakeOptionManager struct {
	mu   sync.Mutex
	opts Options
}

func newFakeOptionManager(opts Options) *fakeOptionManager {
	return &fakeOptionManager{opts: opts}
}

func (o *fakeOptionManager) set(opts Options) {
	o.mu.Lock()
	o.opts = opts
	o.mu.Unlock()
}

func (o *fakeOptionManager) BoolOption(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if name == OptionCacheEnabled {
		return o.opts.CacheEnabled
	}
	return false
}

func (o *fakeOptionManager) IntOption(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch name {
	case OptionInitTimeoutSeconds:
		return o.opts.InitTimeoutSeconds
	case OptionRetryMinutes:
		return o.opts.RetryMinutes
	case OptionMaxRetryHours:
		return o.opts.MaxRetryHours
	}
	return 0
}

type fakeStatusService struct {
	mu       sync.Mutex
	statuses map[EntryID]ReflectionConfigStatus
}

func newFakeStatusService() *fakeStatusService {
	return &fakeStatusService{statuses: make(map[EntryID]ReflectionConfigStatus)}
}

func (s *fakeStatusService) setStatus(id EntryID, status ReflectionConfigStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
}

func (s *fakeStatusService) ExternalReflectionStatus(ctx context.Context, id EntryID) (ReflectionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReflectionStatus{ConfigStatus: s.statuses[id]}, nil
}

type fakeStore struct {
	mu              sync.Mutex
	materializations map[EntryID]*Materialization
	saves           []*Materialization
	saveErr         error
}

func newFakeStore() *fakeStore {
	return &fakeStore{materializations: make(map[EntryID]*Materialization)}
}

func (s *fakeStore) put(m *Materialization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materializations[m.ID] = m
}

func (s *fakeStore) Get(ctx context.Context, id EntryID) (*Materialization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materializations[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) Save(ctx context.Context, m *Materialization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *m
	s.saves = append(s.saves, &cp)
	s.materializations[m.ID] = &cp
	return nil
}

func (s *fakeStore) savedFor(id EntryID) []*Materialization {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Materialization
	for _, m := range s.saves {
		if m.ID == id {
			out = append(out, m)
		}
	}
	return out
}

// fakeExpander grounds Expander: materializations/reflections are plain
// slices mutated directly by tests between Refresh calls, expansion
// outcomes are pre-programmed per entry id, and every call is recorded so
// tests can assert reuse (no new expand call) vs re-expansion.
type fakeExpander struct {
	mu sync.Mutex

	mats  []*Materialization
	refls []*ExternalReflection

	plans   map[EntryID]PlanNode
	schemas map[EntryID]*Schema

	descriptors map[EntryID]*RawDescriptor

	// failWith, if set for an id, makes ExpandMaterialization/ExpandDescriptor
	// return that error every time instead of succeeding.
	failWith map[EntryID]error

	// absent, if set for an id, makes ExpandMaterialization/ExpandDescriptor
	// return (nil, nil): the Expander contract's "drop silently" outcome.
	absent map[EntryID]bool

	expandMatCalls  []EntryID
	expandDescCalls []EntryID
	descriptorCalls []EntryID
}

func newFakeExpander() *fakeExpander {
	return &fakeExpander{
		plans:       make(map[EntryID]PlanNode),
		schemas:     make(map[EntryID]*Schema),
		descriptors: make(map[EntryID]*RawDescriptor),
		failWith:    make(map[EntryID]error),
		absent:      make(map[EntryID]bool),
	}
}

func (e *fakeExpander) ValidMaterializations(ctx context.Context) ([]*Materialization, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Materialization, len(e.mats))
	copy(out, e.mats)
	return out, nil
}

func (e *fakeExpander) ExternalReflections(ctx context.Context) ([]*ExternalReflection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*ExternalReflection, len(e.refls))
	copy(out, e.refls)
	return out, nil
}

func (e *fakeExpander) Descriptor(ctx context.Context, r *ExternalReflection, view CatalogView) (*RawDescriptor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.descriptorCalls = append(e.descriptorCalls, r.ID)
	return e.descriptors[r.ID], nil
}

func (e *fakeExpander) ExpandMaterialization(ctx context.Context, m *Materialization, view CatalogView) (*ExpandedDescriptor, error) {
	e.mu.Lock()
	e.expandMatCalls = append(e.expandMatCalls, m.ID)
	if err, ok := e.failWith[m.ID]; ok {
		e.mu.Unlock()
		return nil, err
	}
	if e.absent[m.ID] {
		e.mu.Unlock()
		return nil, nil
	}
	plan := e.plans[m.ID]
	schema := e.schemas[m.ID]
	e.mu.Unlock()
	return &ExpandedDescriptor{
		SourceID:       m.ID,
		DatasetKey:     m.DatasetKey,
		Plan:           plan,
		SchemaSnapshot: schema,
		IsStale:        m.IsStale,
		Tag:            m.SchemaVersionTag,
	}, nil
}

func (e *fakeExpander) ExpandDescriptor(ctx context.Context, d *RawDescriptor, view CatalogView) (*ExpandedDescriptor, error) {
	e.mu.Lock()
	e.expandDescCalls = append(e.expandDescCalls, d.ID)
	if err, ok := e.failWith[d.ID]; ok {
		e.mu.Unlock()
		return nil, err
	}
	if e.absent[d.ID] {
		e.mu.Unlock()
		return nil, nil
	}
	plan := e.plans[d.ID]
	e.mu.Unlock()
	return &ExpandedDescriptor{
		SourceID:   d.ID,
		DatasetKey: d.DatasetKey,
		Plan:       plan,
		IsStale:    d.IsStale,
		Tag:        d.SchemaVersionTag,
	}, nil
}

func (e *fakeExpander) expandMatCallCount(id EntryID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.expandMatCalls {
		if c == id {
			n++
		}
	}
	return n
}

// fakeClock lets tests fast-forward the cache's notion of "now" without
// sleeping real wall-clock time.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{t: start}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(deps Deps) *Cache {
	c := New(deps)
	return c
}
