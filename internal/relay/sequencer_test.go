package relay

import (
	"sync"
	"testing"
	"time"
)

func TestSequencer_FirstTurnHasNoPredecessor(t *testing.T) {
	s := newSequencer()
	turn, done := s.enqueue("a")
	if turn != nil {
		t.Fatal("first turn should not wait")
	}
	done()
	if s.pending() != 0 {
		t.Errorf("pending = %d after release, want 0", s.pending())
	}
}

func TestSequencer_SecondTurnWaitsForFirst(t *testing.T) {
	s := newSequencer()
	_, done1 := s.enqueue("a")
	turn2, done2 := s.enqueue("a")

	select {
	case <-turn2:
		t.Fatal("second turn released before first finished")
	case <-time.After(10 * time.Millisecond):
	}

	done1()
	select {
	case <-turn2:
	case <-time.After(time.Second):
		t.Fatal("second turn never released")
	}
	done2()
}

func TestSequencer_KeysAreIndependent(t *testing.T) {
	s := newSequencer()
	_, doneA := s.enqueue("a")
	turnB, doneB := s.enqueue("b")
	if turnB != nil {
		t.Fatal("key b must not wait on key a")
	}
	doneB()
	doneA()
}

func TestSequencer_OutOfOrderRelease(t *testing.T) {
	s := newSequencer()
	_, done1 := s.enqueue("a")
	turn2, done2 := s.enqueue("a")
	turn3, done3 := s.enqueue("a")

	// Finishing the tail first must not unblock earlier turns' successors.
	done3()
	select {
	case <-turn2:
		t.Fatal("turn 2 released by turn 3")
	default:
	}

	done1()
	<-turn2
	done2()
	<-turn3
	if s.pending() != 0 {
		t.Errorf("pending = %d, want 0", s.pending())
	}
}

func TestSequencer_StressOrdering(t *testing.T) {
	s := newSequencer()
	const turns = 100

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < turns; i++ {
		turn, done := s.enqueue("chat")
		wg.Add(1)
		go func(i int, turn <-chan struct{}, done func()) {
			defer wg.Done()
			defer done()
			if turn != nil {
				<-turn
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i, turn, done)
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, arrival order violated", i, v)
		}
	}
}
