package usecases_test

import (
	"testing"

	"github.com/transitlabs/fasttrips-go/internal/core/usecases"
)

func TestLabelQueue_PopsInLabelOrder(t *testing.T) {
	q := usecases.NewLabelQueue()
	q.Push(5, "S2", false)
	q.Push(1, "S1", false)
	q.Push(3, "S3", false)

	wantOrder := []string{"S1", "S3", "S2"}
	for _, want := range wantOrder {
		e, ok := q.PopMin()
		if !ok {
			t.Fatalf("expected an entry, queue empty early")
		}
		if e.StopID != want {
			t.Errorf("got %s, want %s", e.StopID, want)
		}
	}
	if _, ok := q.PopMin(); ok {
		t.Error("expected the queue to be drained")
	}
}

func TestLabelQueue_TiesBreakOnStopIDThenIsTrip(t *testing.T) {
	q := usecases.NewLabelQueue()
	q.Push(10, "S1", true)
	q.Push(10, "S1", false)
	q.Push(10, "S0", false)

	e, _ := q.PopMin()
	if e.StopID != "S0" {
		t.Fatalf("first pop: got stop %s, want S0", e.StopID)
	}
	e, _ = q.PopMin()
	if e.StopID != "S1" || e.IsTrip {
		t.Fatalf("second pop: got (%s,isTrip=%v), want (S1,false)", e.StopID, e.IsTrip)
	}
	e, _ = q.PopMin()
	if e.StopID != "S1" || !e.IsTrip {
		t.Fatalf("third pop: got (%s,isTrip=%v), want (S1,true)", e.StopID, e.IsTrip)
	}
}

func TestLabelQueue_Push_RejectsWorseLabelForSameKey(t *testing.T) {
	q := usecases.NewLabelQueue()
	q.Push(5, "S1", false)
	q.Push(10, "S1", false) // worse, should be ignored

	if got := q.Size(); got != 1 {
		t.Fatalf("Size() = %d, want 1", got)
	}
	e, ok := q.PopMin()
	if !ok || e.Label != 5 {
		t.Fatalf("expected the surviving label to be 5, got %v ok=%v", e, ok)
	}
}

func TestLabelQueue_Push_AcceptsBetterLabelForSameKey(t *testing.T) {
	q := usecases.NewLabelQueue()
	q.Push(10, "S1", false)
	q.Push(5, "S1", false) // better, should replace

	if got := q.Size(); got != 1 {
		t.Fatalf("Size() = %d, want 1", got)
	}
	e, ok := q.PopMin()
	if !ok || e.Label != 5 {
		t.Fatalf("expected the surviving label to be 5, got %v ok=%v", e, ok)
	}
}

func TestLabelQueue_IndependentKeysPerTripHalf(t *testing.T) {
	q := usecases.NewLabelQueue()
	q.Push(3, "S1", false)
	q.Push(2, "S1", true)

	if got := q.Size(); got != 2 {
		t.Fatalf("Size() = %d, want 2 (trip and non-trip halves are independent)", got)
	}
}

func TestLabelQueue_StaleDuplicatesSkippedOnPop(t *testing.T) {
	q := usecases.NewLabelQueue()
	// Push a worse label first, implicitly creating a heap entry that would
	// be stale once a better one for the same key supersedes it. Since Push
	// rejects worse labels outright, force staleness via improve-then-pop:
	// push good, improve again, and ensure only one live entry survives.
	q.Push(8, "S1", false)
	q.Push(4, "S1", false)
	q.Push(6, "S1", false) // worse than 4, rejected

	if got := q.Size(); got != 1 {
		t.Fatalf("Size() = %d, want 1", got)
	}
	e, ok := q.PopMin()
	if !ok || e.Label != 4 {
		t.Fatalf("expected surviving label 4, got %v ok=%v", e, ok)
	}
	if _, ok := q.PopMin(); ok {
		t.Error("expected queue drained after popping the one live entry")
	}
}

func TestLabelQueue_Size_ReflectsLiveEntriesNotHeapLength(t *testing.T) {
	q := usecases.NewLabelQueue()
	q.Push(10, "S1", false)
	q.Push(5, "S1", false)  // supersedes, heap now holds 2 raw entries but 1 live
	q.Push(1, "S2", false)

	if got := q.Size(); got != 2 {
		t.Fatalf("Size() = %d, want 2", got)
	}
}
