package usecases

import "container/heap"

// labelKey identifies one side of one stop: a stop has an independent best
// label for its trip half and its non-trip half.
type labelKey struct {
	StopID string
	IsTrip bool
}

// LabelEntry is one (label, stop, link-class) triple popped off the queue.
type LabelEntry struct {
	Label  float64
	StopID string
	IsTrip bool
}

// LabelQueue is a lazy-deletion min-heap keyed on (label, stop_id, is_trip).
// Smaller label wins; ties break on smaller stop_id, then on is_trip=false
// over is_trip=true. At most one entry per key is ever returned as valid —
// older, higher-labeled duplicates already in the heap are skipped on pop
// rather than removed eagerly, which avoids needing a decrease-key heap.
type LabelQueue struct {
	items live
	// current holds the label of the one live entry per key, if any.
	current map[labelKey]float64
}

// NewLabelQueue returns an empty queue.
func NewLabelQueue() *LabelQueue {
	q := &LabelQueue{current: make(map[labelKey]float64)}
	heap.Init(&q.items)
	return q
}

// Push admits a new label for (stopID, isTrip) if it is better than (or the
// first for) the currently-live label on that key.
func (q *LabelQueue) Push(label float64, stopID string, isTrip bool) {
	key := labelKey{StopID: stopID, IsTrip: isTrip}
	if cur, live := q.current[key]; live && label >= cur {
		return
	}
	q.current[key] = label
	heap.Push(&q.items, &labelItem{entry: LabelEntry{Label: label, StopID: stopID, IsTrip: isTrip}})
}

// Size reports the number of live entries, not the raw heap length.
func (q *LabelQueue) Size() int {
	return len(q.current)
}

// PopMin removes and returns the smallest live entry. ok is false when the
// queue has no live entries left.
func (q *LabelQueue) PopMin() (entry LabelEntry, ok bool) {
	for q.items.Len() > 0 {
		item := heap.Pop(&q.items).(*labelItem)
		key := labelKey{StopID: item.entry.StopID, IsTrip: item.entry.IsTrip}
		cur, live := q.current[key]
		if !live || cur != item.entry.Label {
			continue // stale duplicate: a better push for this key already happened, or it was already popped
		}
		delete(q.current, key)
		return item.entry, true
	}
	return LabelEntry{}, false
}

// labelItem is one heap slot.
type labelItem struct {
	entry LabelEntry
}

// live is the underlying container/heap.Interface implementation; tie-break
// order follows spec §4.1: label, then stop_id, then is_trip=false first.
type live []*labelItem

func (l live) Len() int { return len(l) }

func (l live) Less(i, j int) bool {
	a, b := l[i].entry, l[j].entry
	if a.Label != b.Label {
		return a.Label < b.Label
	}
	if a.StopID != b.StopID {
		return a.StopID < b.StopID
	}
	return !a.IsTrip && b.IsTrip
}

func (l live) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

func (l *live) Push(x any) {
	*l = append(*l, x.(*labelItem))
}

func (l *live) Pop() any {
	old := *l
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*l = old[:n-1]
	return item
}
