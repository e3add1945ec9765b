package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pot-code/roadmap-progress/internal/infrastructure/driver"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// the apm package starts its default tracer at init
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("go.elastic.co/apm/transport.(*HTTPTransport).WatchConfig.func1"))
}

var errInjected = errors.New("injected failure")

// flakyKV MemoryKV with switchable read and write failures
type flakyKV struct {
	*driver.MemoryKV

	mu        sync.Mutex
	failGet   bool
	failSet   bool
	sets      int
	setDelay  time.Duration
	getCalled int
}

var _ driver.KeyValueDB = &flakyKV{}

func newFlakyKV() *flakyKV {
	return &flakyKV{MemoryKV: driver.NewMemoryKV()}
}

func (f *flakyKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	f.getCalled++
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return "", errInjected
	}
	return f.MemoryKV.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	f.mu.Lock()
	fail, delay := f.failSet, f.setDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		return errInjected
	}
	f.mu.Lock()
	f.sets++
	f.mu.Unlock()
	return f.MemoryKV.Set(ctx, key, value, expiration)
}

func (f *flakyKV) setFailures(get, set bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet, f.failSet = get, set
}

func (f *flakyKV) gets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalled
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestStore(kv driver.KeyValueDB) *Store {
	return NewStore(kv, nil, WithStoreClock(fixedClock))
}

// gatedKV MemoryKV whose next Get, once armed, blocks until released
type gatedKV struct {
	*driver.MemoryKV

	mu      sync.Mutex
	entered chan struct{}
	gate    chan struct{}
}

func newGatedKV() *gatedKV {
	return &gatedKV{MemoryKV: driver.NewMemoryKV()}
}

// arm block the next Get, entered is closed once it is waiting
func (g *gatedKV) arm() (<-chan struct{}, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entered = make(chan struct{})
	g.gate = make(chan struct{})
	var once sync.Once
	gate := g.gate
	return g.entered, func() { once.Do(func() { close(gate) }) }
}

func (g *gatedKV) Get(ctx context.Context, key string) (string, error) {
	g.mu.Lock()
	entered, gate := g.entered, g.gate
	g.entered, g.gate = nil, nil
	g.mu.Unlock()
	if entered != nil {
		close(entered)
		<-gate
	}
	return g.MemoryKV.Get(ctx, key)
}
