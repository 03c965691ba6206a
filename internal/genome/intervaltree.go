package genome

import "sort"

// IntervalTree answers point-overlap queries over closed [start, end]
// ranges in O(log n + k) using a sorted slice. It is immutable once built.
type IntervalTree[T any] struct {
	intervals []treeInterval[T]
	maxEnd    []int64 // maxEnd[i] = max(end) for intervals[:i+1]
}

type treeInterval[T any] struct {
	start int64
	end   int64
	value T
}

// BuildIntervalTree indexes values by the closed range span returns for each.
func BuildIntervalTree[T any](values []T, span func(T) (start, end int64)) *IntervalTree[T] {
	if len(values) == 0 {
		return &IntervalTree[T]{}
	}

	intervals := make([]treeInterval[T], len(values))
	for i, v := range values {
		start, end := span(v)
		intervals[i] = treeInterval[T]{start: start, end: end, value: v}
	}

	sort.SliceStable(intervals, func(i, j int) bool {
		return intervals[i].start < intervals[j].start
	})

	maxEnd := make([]int64, len(intervals))
	maxEnd[0] = intervals[0].end
	for i := 1; i < len(intervals); i++ {
		maxEnd[i] = max(maxEnd[i-1], intervals[i].end)
	}

	return &IntervalTree[T]{intervals: intervals, maxEnd: maxEnd}
}

// Len returns the number of indexed intervals.
func (t *IntervalTree[T]) Len() int {
	return len(t.intervals)
}

// FindOverlaps returns every value whose range contains pos.
func (t *IntervalTree[T]) FindOverlaps(pos int64) []T {
	// Candidates are the intervals starting at or before pos: [0, hi).
	hi := sort.Search(len(t.intervals), func(i int) bool {
		return t.intervals[i].start > pos
	})

	var result []T
	for i := hi - 1; i >= 0; i-- {
		// No interval in [0, i] reaches pos.
		if t.maxEnd[i] < pos {
			break
		}
		if t.intervals[i].end >= pos {
			result = append(result, t.intervals[i].value)
		}
	}
	return result
}
