package progress

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CacheState lifecycle of the in-memory mirror
type CacheState int32

const (
	StateUninitialized CacheState = iota
	StateLoading
	StateReady
)

func (s CacheState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// Event emitted after every cache mutation. Reset is set by ResetAll,
// in which case GroupID is empty.
type Event struct {
	GroupID string           `json:"groupId,omitempty"`
	Record  CompletionRecord `json:"record"`
	Reset   bool             `json:"reset,omitempty"`
}

// DefaultPersistTimeout upper bound of one write-behind persist
const DefaultPersistTimeout = 10 * time.Second

// Cache in-memory mirror of a Store.
//
// The table is loaded once, on first use. Mutations update memory and
// return immediately; the matching Store write happens later on a single
// worker, in mutation order. Flush waits for those writes.
type Cache struct {
	store  *Store
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	state  CacheState
	loaded chan struct{}
	table  ProgressTable

	groups *keyedMutex
	writer *writeBehind

	subMu     sync.Mutex
	subs      map[int]chan Event
	nextSub   int
	subClosed bool
}

var _ Tracker = &Cache{}

// CacheOption .
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	now            func() time.Time
	persistTimeout time.Duration
}

// WithCacheClock override the clock used for lastUpdated
func WithCacheClock(now func() time.Time) CacheOption {
	return func(o *cacheOptions) {
		o.now = now
	}
}

// WithPersistTimeout bound each write-behind persist
func WithPersistTimeout(timeout time.Duration) CacheOption {
	return func(o *cacheOptions) {
		if timeout > 0 {
			o.persistTimeout = timeout
		}
	}
}

// NewCache create a Cache in front of store, Close it to stop the writer
func NewCache(store *Store, logger *zap.Logger, options ...CacheOption) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &cacheOptions{now: time.Now, persistTimeout: DefaultPersistTimeout}
	for _, option := range options {
		option(o)
	}
	return &Cache{
		store:  store,
		logger: logger,
		now:    o.now,
		loaded: make(chan struct{}),
		groups: newKeyedMutex(),
		writer: newWriteBehind(logger, o.persistTimeout),
		subs:   make(map[int]chan Event),
	}
}

// State current lifecycle state
func (c *Cache) State() CacheState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Warm trigger the initial load ahead of the first query
func (c *Cache) Warm(ctx context.Context) {
	c.ensureLoaded(ctx)
}

// ensureLoaded runs the load at most once, concurrent callers share it
func (c *Cache) ensureLoaded(ctx context.Context) {
	c.mu.RLock()
	state, loaded := c.state, c.loaded
	c.mu.RUnlock()
	if state == StateReady {
		return
	}

	c.mu.Lock()
	switch c.state {
	case StateReady:
		c.mu.Unlock()
		return
	case StateLoading:
		c.mu.Unlock()
		<-loaded
		return
	}
	c.state = StateLoading
	c.mu.Unlock()

	// the load is shared, one caller giving up must not cut it short
	table := c.store.GetAll(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.table = table
	c.state = StateReady
	c.mu.Unlock()
	close(loaded)
	c.logger.Debug("Progress cache ready", zap.Int("progress.groups", len(table)))
}

// GetAll copy of the whole table
func (c *Cache) GetAll(ctx context.Context) ProgressTable {
	c.ensureLoaded(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table.Clone()
}

// GetGroupProgress record of groupID or the zero record
func (c *Cache) GetGroupProgress(ctx context.Context, groupID string) CompletionRecord {
	c.ensureLoaded(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table.Get(groupID)
}

// ToggleItemCompletion flip itemID in memory and persist in the background
func (c *Cache) ToggleItemCompletion(ctx context.Context, groupID, itemID string, totalItems int) ToggleResult {
	mustTotal(totalItems)
	c.ensureLoaded(ctx)
	unlock := c.groups.Lock(groupID)
	defer unlock()

	c.mu.Lock()
	current := c.table.Get(groupID)
	rec := newRecord(toggleItemID(current.CompletedItemIDs, itemID), totalItems, c.now())
	c.table[groupID] = rec
	snapshot := rec.Clone()
	c.persist(persistJob{
		op:      "toggle",
		groupID: groupID,
		apply: func(ctx context.Context) error {
			return c.store.putRecord(ctx, groupID, &snapshot)
		},
	})
	c.mu.Unlock()

	c.publish(Event{GroupID: groupID, Record: snapshot.Clone()})
	return snapshot.Result()
}

// ResetGroupProgress forget groupID in memory and persist in the background
func (c *Cache) ResetGroupProgress(ctx context.Context, groupID string) ToggleResult {
	c.ensureLoaded(ctx)
	unlock := c.groups.Lock(groupID)
	defer unlock()

	c.mu.Lock()
	delete(c.table, groupID)
	c.persist(persistJob{
		op:      "reset",
		groupID: groupID,
		apply: func(ctx context.Context) error {
			return c.store.deleteRecord(ctx, groupID)
		},
	})
	c.mu.Unlock()

	c.publish(Event{GroupID: groupID, Record: ZeroRecord()})
	return ZeroResult()
}

// ResetAll empty the table in memory and persist in the background
func (c *Cache) ResetAll(ctx context.Context) {
	c.ensureLoaded(ctx)

	c.mu.Lock()
	c.table = ProgressTable{}
	c.persist(persistJob{
		op:    "reset_all",
		apply: c.store.clear,
	})
	c.mu.Unlock()

	c.publish(Event{Record: ZeroRecord(), Reset: true})
}

// Flush wait until every mutation so far has reached the Store
func (c *Cache) Flush() {
	c.writer.flush()
}

// Pending number of persists not yet applied
func (c *Cache) Pending() int {
	return c.writer.pending()
}

// Close flush pending writes, stop the writer and close every subscription
func (c *Cache) Close() {
	c.writer.close()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subClosed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

// Subscribe receive mutation events on a channel with the given buffer.
// Events are dropped for subscribers that fall behind. Call the returned
// func to unsubscribe. Once the cache is closed the channel comes back closed.
func (c *Cache) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	c.subMu.Lock()
	if c.subClosed {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

// persist must be called with c.mu held so queue order equals memory order
func (c *Cache) persist(job persistJob) {
	if !c.writer.enqueue(job) {
		c.logger.Warn("Progress cache is closed, change kept in memory only",
			zap.String("progress.op", job.op),
			zap.String("progress.group.id", job.groupID),
		)
	}
}

func (c *Cache) publish(e Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- e:
		default:
			c.logger.Debug("Dropping progress event for slow subscriber", zap.String("progress.group.id", e.GroupID))
		}
	}
}
