package progress

import "fmt"

// Count completed and total items of one group
type Count struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Overall summed counts and the percentage over the sums
type Overall struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// ComputePercentage round(100 * completed / total) with halves rounded up.
//
// completed is clamped into [0, total], a zero total yields 0. A negative
// total is a caller bug and panics.
func ComputePercentage(completed, total int) int {
	mustTotal(total)
	if total == 0 {
		return 0
	}
	completed = clamp(completed, total)
	return (200*completed + total) / (2 * total)
}

// AggregateOverall sum every group after clamping, then compute the percentage.
// Groups without items add nothing to either sum.
func AggregateOverall(counts []Count) Overall {
	var o Overall
	for _, c := range counts {
		mustTotal(c.Total)
		o.Completed += clamp(c.Completed, c.Total)
		o.Total += c.Total
	}
	o.Percentage = ComputePercentage(o.Completed, o.Total)
	return o
}

// CountOf count of a record against the catalog's current total
func CountOf(r CompletionRecord, totalItems int) Count {
	return Count{Completed: len(r.CompletedItemIDs), Total: totalItems}
}

func clamp(completed, total int) int {
	if completed < 0 {
		return 0
	}
	if completed > total {
		return total
	}
	return completed
}

// mustTotal a negative item count can only come from a broken caller
func mustTotal(total int) {
	if total < 0 {
		panic(fmt.Errorf("progress: negative total items %d", total))
	}
}
