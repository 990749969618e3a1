package queue

import (
	"errors"
	"sync"
	"testing"
)

// testItem is a simple struct for testing the generic queue
type testItem struct {
	ID   int
	Name string
}

func TestQueue_New(t *testing.T) {
	q := New[testItem]()
	if q == nil {
		t.Fatal("expected non-nil queue")
	}
	if !q.Empty() {
		t.Error("expected empty queue")
	}
	if q.Len() != 0 {
		t.Errorf("expected length 0, got %d", q.Len())
	}
	if q.Cap() != 0 {
		t.Errorf("expected unbounded queue, got capacity %d", q.Cap())
	}
}

func TestQueue_Push(t *testing.T) {
	q := New[testItem]()

	q.Push(testItem{ID: 1, Name: "first"})
	if q.Len() != 1 {
		t.Errorf("expected length 1, got %d", q.Len())
	}

	q.Push(testItem{ID: 2}, testItem{ID: 3})
	if q.Len() != 3 {
		t.Errorf("expected length 3, got %d", q.Len())
	}
}

func TestQueue_TryPush_Bounded(t *testing.T) {
	q := NewBounded[testItem](2)

	if err := q.TryPush(testItem{ID: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.TryPush(testItem{ID: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.TryPush(testItem{ID: 3}); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if q.Len() != 2 {
		t.Errorf("expected length 2, got %d", q.Len())
	}

	q.Drain()
	if err := q.TryPush(testItem{ID: 4}); err != nil {
		t.Errorf("expected room after drain, got %v", err)
	}
}

func TestQueue_NewBounded_NonPositiveIsUnbounded(t *testing.T) {
	q := NewBounded[int](-1)
	for i := 0; i < 100; i++ {
		if err := q.TryPush(i); err != nil {
			t.Fatalf("unexpected error at %d: %v", i, err)
		}
	}
}

func TestQueue_Drain(t *testing.T) {
	q := New[testItem]()
	q.Push(testItem{ID: 1}, testItem{ID: 2}, testItem{ID: 3})

	items := q.Drain()

	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, item := range items {
		if item.ID != i+1 {
			t.Errorf("expected ID %d at %d, got %d", i+1, i, item.ID)
		}
	}
	if !q.Empty() {
		t.Error("expected empty queue after drain")
	}

	// the drained slice is not shared with later pushes
	q.Push(testItem{ID: 9})
	if items[0].ID != 1 {
		t.Errorf("drained slice was overwritten: %+v", items[0])
	}
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	if q.Len() != 1000 {
		t.Errorf("expected 1000 items, got %d", q.Len())
	}
}
