package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.elastic.co/apm"
)

// ErrUnknownGroup the group id is not part of the catalog
var ErrUnknownGroup = errors.New("unknown group")

// Catalog read-only view of the roadmap structure
type Catalog interface {
	// TotalItems number of items in groupID, false if the group is unknown
	TotalItems(groupID string) (int, bool)
	// GroupIDs every group in display order
	GroupIDs() []string
}

// GroupProgress a record measured against the catalog's current item count
type GroupProgress struct {
	GroupID          string     `json:"groupId"`
	CompletedItemIDs []string   `json:"completedItemIds"`
	Completed        int        `json:"completed"`
	Total            int        `json:"total"`
	ProgressPercent  int        `json:"progressPercent"`
	LastUpdated      *time.Time `json:"lastUpdated,omitempty"`
}

// Overview every catalog group plus the overall aggregate
type Overview struct {
	Overall Overall          `json:"overall"`
	Groups  []*GroupProgress `json:"groups"`
}

type ProgressUseCase interface {
	GetGroup(ctx context.Context, groupID string) (*GroupProgress, error)
	ToggleItem(ctx context.Context, groupID, itemID string) (*ToggleResult, error)
	ResetGroup(ctx context.Context, groupID string) (*ToggleResult, error)
	ResetAll(ctx context.Context) error
	Overview(ctx context.Context) (*Overview, error)
}

// ProgressUseCaseImpl ...
type ProgressUseCaseImpl struct {
	Tracker Tracker
	Catalog Catalog
}

var _ ProgressUseCase = &ProgressUseCaseImpl{}

// NewProgressUseCase ...
func NewProgressUseCase(tracker Tracker, catalog Catalog) *ProgressUseCaseImpl {
	return &ProgressUseCaseImpl{tracker, catalog}
}

// GetGroup progress of one catalog group
func (pu *ProgressUseCaseImpl) GetGroup(ctx context.Context, groupID string) (*GroupProgress, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.GetGroup", "service")
	defer apmSpan.End()

	total, err := pu.totalItems(groupID)
	if err != nil {
		return nil, err
	}
	return measure(groupID, pu.Tracker.GetGroupProgress(ctx, groupID), total), nil
}

// ToggleItem flip one item of a catalog group
func (pu *ProgressUseCaseImpl) ToggleItem(ctx context.Context, groupID, itemID string) (*ToggleResult, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.ToggleItem", "service")
	defer apmSpan.End()

	total, err := pu.totalItems(groupID)
	if err != nil {
		return nil, err
	}
	res := pu.Tracker.ToggleItemCompletion(ctx, groupID, itemID, total)
	return &res, nil
}

// ResetGroup clear a catalog group
func (pu *ProgressUseCaseImpl) ResetGroup(ctx context.Context, groupID string) (*ToggleResult, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.ResetGroup", "service")
	defer apmSpan.End()

	if _, err := pu.totalItems(groupID); err != nil {
		return nil, err
	}
	res := pu.Tracker.ResetGroupProgress(ctx, groupID)
	return &res, nil
}

// ResetAll clear every group, including ones no longer in the catalog
func (pu *ProgressUseCaseImpl) ResetAll(ctx context.Context) error {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.ResetAll", "service")
	defer apmSpan.End()

	pu.Tracker.ResetAll(ctx)
	return nil
}

// Overview per-group progress in catalog order and the overall percentage.
// Stored groups missing from the catalog are ignored.
func (pu *ProgressUseCaseImpl) Overview(ctx context.Context) (*Overview, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.Overview", "service")
	defer apmSpan.End()

	table := pu.Tracker.GetAll(ctx)
	ids := pu.Catalog.GroupIDs()
	groups := make([]*GroupProgress, 0, len(ids))
	counts := make([]Count, 0, len(ids))
	for _, id := range ids {
		total, err := pu.totalItems(id)
		if err != nil {
			return nil, err
		}
		gp := measure(id, table.Get(id), total)
		groups = append(groups, gp)
		counts = append(counts, Count{Completed: gp.Completed, Total: gp.Total})
	}
	return &Overview{
		Overall: AggregateOverall(counts),
		Groups:  groups,
	}, nil
}

func (pu *ProgressUseCaseImpl) totalItems(groupID string) (int, error) {
	total, ok := pu.Catalog.TotalItems(groupID)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownGroup, groupID)
	}
	return total, nil
}

// measure recompute the record against total, the stored percentage may be
// stale if the catalog changed since the last write
func measure(groupID string, r CompletionRecord, total int) *GroupProgress {
	c := CountOf(r, total)
	completed := clamp(c.Completed, c.Total)
	return &GroupProgress{
		GroupID:          groupID,
		CompletedItemIDs: r.CompletedItemIDs,
		Completed:        completed,
		Total:            total,
		ProgressPercent:  ComputePercentage(completed, total),
		LastUpdated:      r.LastUpdated,
	}
}
