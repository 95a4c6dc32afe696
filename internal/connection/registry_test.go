package connection

import (
	"reflect"
	"testing"
)

func TestHandlers_Order(t *testing.T) {
	var h handlers[string]
	h.add(1, "first")
	h.add(2, "second")
	h.add(3, "third")

	if got := h.snapshot(); !reflect.DeepEqual(got, []string{"first", "second", "third"}) {
		t.Errorf("snapshot() = %v", got)
	}

	if !h.remove(2) {
		t.Error("remove(2) = false, want true")
	}
	if h.remove(2) {
		t.Error("second remove(2) = true, want false")
	}

	if got := h.snapshot(); !reflect.DeepEqual(got, []string{"first", "third"}) {
		t.Errorf("snapshot() after remove = %v", got)
	}
	if h.len() != 2 {
		t.Errorf("len() = %d, want 2", h.len())
	}
}

func TestHandlers_SnapshotIsolated(t *testing.T) {
	var h handlers[int]
	h.add(1, 10)
	h.add(2, 20)

	snap := h.snapshot()
	h.remove(1)
	h.add(3, 30)

	if !reflect.DeepEqual(snap, []int{10, 20}) {
		t.Errorf("snapshot changed after mutation: %v", snap)
	}
}
