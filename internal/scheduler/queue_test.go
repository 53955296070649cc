package scheduler

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestDueQueue_PopsInDueTimeOrder(t *testing.T) {
	q := newDueQueue()
	now := time.Now()

	addrA := common.HexToAddress("0x01")
	addrB := common.HexToAddress("0x02")
	addrC := common.HexToAddress("0x03")

	q.push(addrB, now.Add(2*time.Minute))
	q.push(addrA, now.Add(1*time.Minute))
	q.push(addrC, now.Add(3*time.Minute))

	first := q.pop()
	if first.address != addrA {
		t.Fatalf("expected %s to pop first, got %s", addrA.Hex(), first.address.Hex())
	}
	second := q.pop()
	if second.address != addrB {
		t.Fatalf("expected %s to pop second, got %s", addrB.Hex(), second.address.Hex())
	}
	third := q.pop()
	if third.address != addrC {
		t.Fatalf("expected %s to pop third, got %s", addrC.Hex(), third.address.Hex())
	}
}

// TestDueQueue_DuplicateEnqueueEarlierPopsFirst mirrors the
// scheduler-level invariant: pushing (t1, A) then (t2 < t1, A) leaves both
// entries in the heap, but the earlier one always surfaces first. The
// scheduler's processing set (not the queue itself) is what prevents the
// stale t1 entry from triggering a second dispatch once it is eventually
// popped.
func TestDueQueue_DuplicateEnqueueEarlierPopsFirst(t *testing.T) {
	q := newDueQueue()
	now := time.Now()
	addr := common.HexToAddress("0x01")

	t1 := now.Add(5 * time.Minute)
	t2 := now.Add(1 * time.Minute)

	q.push(addr, t1)
	q.push(addr, t2)

	if q.len() != 2 {
		t.Fatalf("expected both duplicate entries to remain queued, got %d", q.len())
	}

	first := q.pop()
	if !first.dueTime.Equal(t2) {
		t.Fatalf("expected the sooner duplicate (t2) to pop first, got due at %v", first.dueTime)
	}

	second := q.pop()
	if !second.dueTime.Equal(t1) {
		t.Fatalf("expected the stale duplicate (t1) to pop second, got due at %v", second.dueTime)
	}
}

func TestDueQueue_EmptyPeekDue(t *testing.T) {
	q := newDueQueue()
	if _, ok := q.peekDue(); ok {
		t.Fatal("expected peekDue to report false on an empty queue")
	}
}
