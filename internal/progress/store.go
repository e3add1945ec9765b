package progress

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pot-code/roadmap-progress/internal/infrastructure/driver"
	"go.uber.org/zap"
)

// DefaultKey key holding the serialized ProgressTable
const DefaultKey = "roadmap:progress"

// Store persists the ProgressTable as one blob in a KeyValueDB.
//
// Every public method fails soft: read errors and corrupt data degrade to
// zero values and write errors are logged, never returned.
type Store struct {
	kv     driver.KeyValueDB
	key    string
	logger *zap.Logger
	now    func() time.Time

	// mu guards the read-modify-write of the blob, which all groups share
	mu     sync.Mutex
	groups *keyedMutex
}

var _ Tracker = &Store{}

// StoreOption .
type StoreOption func(*Store)

// WithKey persist the table under key instead of DefaultKey
func WithKey(key string) StoreOption {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithStoreClock override the clock used for lastUpdated
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore create a Store on top of kv
func NewStore(kv driver.KeyValueDB, logger *zap.Logger, options ...StoreOption) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		kv:     kv,
		key:    DefaultKey,
		logger: logger,
		now:    time.Now,
		groups: newKeyedMutex(),
	}
	for _, option := range options {
		option(s)
	}
	s.logger = s.logger.With(zap.String("progress.key", s.key))
	return s
}

// GetAll load the whole table, empty when missing or unreadable
func (s *Store) GetAll(ctx context.Context) ProgressTable {
	table, err := s.load(ctx)
	if err != nil {
		s.logger.Warn("Failed to load progress table, using an empty one", zap.Error(err))
		return ProgressTable{}
	}
	return table
}

// GetGroupProgress stored record of groupID or the zero record
func (s *Store) GetGroupProgress(ctx context.Context, groupID string) CompletionRecord {
	return s.GetAll(ctx).Get(groupID)
}

// SaveGroupProgress store completedItemIDs for groupID and return the new percentage.
//
// A failed write is logged and reported as 0, which callers must read as
// "unknown" rather than "nothing done".
func (s *Store) SaveGroupProgress(ctx context.Context, groupID string, completedItemIDs []string, totalItems int) int {
	unlock := s.groups.Lock(groupID)
	defer unlock()

	rec := newRecord(completedItemIDs, totalItems, s.now())
	if err := s.putRecord(ctx, groupID, rec); err != nil {
		s.logger.Error("Failed to save group progress", zap.String("progress.group.id", groupID), zap.Error(err))
		return 0
	}
	return rec.Progress
}

// ToggleItemCompletion flip itemID in the completed set of groupID.
//
// Calls for the same group are serialized and the read, flip and write happen
// as one update of the table. When the write fails the computed result is
// still returned.
func (s *Store) ToggleItemCompletion(ctx context.Context, groupID, itemID string, totalItems int) ToggleResult {
	mustTotal(totalItems)
	unlock := s.groups.Lock(groupID)
	defer unlock()

	var rec *CompletionRecord
	err := s.update(ctx, func(table ProgressTable) {
		current := table.Get(groupID)
		rec = newRecord(toggleItemID(current.CompletedItemIDs, itemID), totalItems, s.now())
		table[groupID] = rec
	})
	if err == nil {
		return rec.Result()
	}
	if rec == nil {
		// nothing was written, the stored records are unknown
		s.logger.Error("Failed to read progress before toggle", zap.String("progress.group.id", groupID),
			zap.String("progress.item.id", itemID), zap.Error(err))
		return ZeroResult()
	}
	s.logger.Error("Failed to persist toggled item", zap.String("progress.group.id", groupID),
		zap.String("progress.item.id", itemID), zap.Error(err))
	return rec.Result()
}

// ResetGroupProgress drop the record of groupID, always returns the zero result
func (s *Store) ResetGroupProgress(ctx context.Context, groupID string) ToggleResult {
	unlock := s.groups.Lock(groupID)
	defer unlock()

	if err := s.deleteRecord(ctx, groupID); err != nil {
		s.logger.Error("Failed to reset group progress", zap.String("progress.group.id", groupID), zap.Error(err))
	}
	return ZeroResult()
}

// ResetAll replace the table with an empty one
func (s *Store) ResetAll(ctx context.Context) {
	if err := s.clear(ctx); err != nil {
		s.logger.Error("Failed to reset progress table", zap.Error(err))
	}
}

func (s *Store) putRecord(ctx context.Context, groupID string, rec *CompletionRecord) error {
	return s.update(ctx, func(table ProgressTable) {
		table[groupID] = rec
	})
}

func (s *Store) deleteRecord(ctx context.Context, groupID string) error {
	return s.update(ctx, func(table ProgressTable) {
		delete(table, groupID)
	})
}

func (s *Store) clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, ProgressTable{})
}

// update apply fn to the persisted table atomically with respect to other
// writers of this Store, and of other processes when the backend is an Updater.
// fn is not called when the table could not be read.
func (s *Store) update(ctx context.Context, fn func(ProgressTable)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.kv.(driver.Updater); ok {
		return u.Update(ctx, s.key, func(blob string, found bool) (string, error) {
			table := ProgressTable{}
			if found {
				table = s.decode(blob)
			}
			fn(table)
			return s.encode(table)
		})
	}

	table, err := s.load(ctx)
	if err != nil {
		return err
	}
	fn(table)
	return s.save(ctx, table)
}

// load returns an error only when storage could not be read,
// undecodable content is logged and treated as absent
func (s *Store) load(ctx context.Context) (ProgressTable, error) {
	blob, err := s.kv.Get(ctx, s.key)
	if driver.IsKeyNotFound(err) {
		return ProgressTable{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.decode(blob), nil
}

func (s *Store) decode(blob string) ProgressTable {
	table := ProgressTable{}
	if blob == "" {
		return table
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		s.logger.Warn("Progress table is corrupt, treating it as empty", zap.Error(err))
		return table
	}
	for groupID, entry := range raw {
		rec := new(CompletionRecord)
		if err := json.Unmarshal(entry, rec); err != nil {
			s.logger.Warn("Skipping unreadable progress record", zap.String("progress.group.id", groupID), zap.Error(err))
			continue
		}
		rec.CompletedItemIDs = normalizeItemIDs(rec.CompletedItemIDs)
		table[groupID] = rec
	}
	return table
}

func (s *Store) save(ctx context.Context, table ProgressTable) error {
	blob, err := s.encode(table)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, s.key, blob, 0)
}

func (s *Store) encode(table ProgressTable) (string, error) {
	blob, err := json.Marshal(table)
	if err != nil {
		return "", err
	}
	return string(blob), nil
}
