// Package progress tracks which roadmap items are completed per learning
// path ("group") and derives completion percentages from that state.
//
// The persisted state is a single ProgressTable blob owned by Store. Cache
// mirrors it in memory for synchronous reads and writes it back behind the
// caller's back.
package progress

import (
	"context"
	"sort"
	"time"
)

// CompletionRecord completion state of one group
type CompletionRecord struct {
	CompletedItemIDs []string   `json:"completedItemIds"`
	Progress         int        `json:"progress"`
	LastUpdated      *time.Time `json:"lastUpdated,omitempty"`
}

// ProgressTable every persisted record keyed by group id
type ProgressTable map[string]*CompletionRecord

// ToggleResult returned by toggle and reset operations
type ToggleResult struct {
	CompletedItemIDs []string `json:"completedItemIds"`
	ProgressPercent  int      `json:"progressPercent"`
}

// ZeroRecord the implicit record of a group that was never touched
func ZeroRecord() CompletionRecord {
	return CompletionRecord{CompletedItemIDs: []string{}}
}

// ZeroResult the result of resetting a group
func ZeroResult() ToggleResult {
	return ToggleResult{CompletedItemIDs: []string{}}
}

// Clone deep copy, safe to hand out of a lock
func (r *CompletionRecord) Clone() CompletionRecord {
	c := CompletionRecord{
		CompletedItemIDs: append([]string{}, r.CompletedItemIDs...),
		Progress:         r.Progress,
	}
	if r.LastUpdated != nil {
		ts := *r.LastUpdated
		c.LastUpdated = &ts
	}
	return c
}

// Result project the record onto a ToggleResult
func (r *CompletionRecord) Result() ToggleResult {
	return ToggleResult{
		CompletedItemIDs: append([]string{}, r.CompletedItemIDs...),
		ProgressPercent:  r.Progress,
	}
}

// Clone deep copy of the whole table
func (t ProgressTable) Clone() ProgressTable {
	c := make(ProgressTable, len(t))
	for id, r := range t {
		rc := r.Clone()
		c[id] = &rc
	}
	return c
}

// Get get-or-default lookup, never returns a shared pointer
func (t ProgressTable) Get(groupID string) CompletionRecord {
	if r, ok := t[groupID]; ok && r != nil {
		return r.Clone()
	}
	return ZeroRecord()
}

// normalizeItemIDs de-duplicates and sorts ids, empty ids are dropped
func normalizeItemIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// toggleItemID strict membership flip
func toggleItemID(ids []string, itemID string) []string {
	out := make([]string, 0, len(ids)+1)
	found := false
	for _, id := range ids {
		if id == itemID {
			found = true
			continue
		}
		out = append(out, id)
	}
	if !found {
		out = append(out, itemID)
	}
	return normalizeItemIDs(out)
}

// newRecord build a record with a freshly computed percentage
func newRecord(ids []string, totalItems int, at time.Time) *CompletionRecord {
	ids = normalizeItemIDs(ids)
	ts := at.UTC()
	return &CompletionRecord{
		CompletedItemIDs: ids,
		Progress:         ComputePercentage(len(ids), totalItems),
		LastUpdated:      &ts,
	}
}

// Tracker read/write surface shared by Store and Cache
type Tracker interface {
	GetAll(ctx context.Context) ProgressTable
	GetGroupProgress(ctx context.Context, groupID string) CompletionRecord
	ToggleItemCompletion(ctx context.Context, groupID, itemID string, totalItems int) ToggleResult
	ResetGroupProgress(ctx context.Context, groupID string) ToggleResult
	ResetAll(ctx context.Context)
}
