package proxy

import (
	"reflect"
	"testing"
)

func TestResponseOrdererInOrder(t *testing.T) {
	o := NewResponseOrderer()
	s0 := o.Next()
	s1 := o.Next()

	if ready := o.Complete(s0, []byte("a")); !reflect.DeepEqual(ready, [][]byte{[]byte("a")}) {
		t.Fatalf("unexpected flush for in-order completion: %v", ready)
	}
	if ready := o.Complete(s1, []byte("b")); !reflect.DeepEqual(ready, [][]byte{[]byte("b")}) {
		t.Fatalf("unexpected flush for second completion: %v", ready)
	}
	if p := o.Pending(); p != 0 {
		t.Fatalf("expected no pending entries, got %d", p)
	}
}

func TestResponseOrdererOutOfOrder(t *testing.T) {
	o := NewResponseOrderer()
	s0 := o.Next()
	s1 := o.Next()
	s2 := o.Next()

	if ready := o.Complete(s1, []byte("b")); len(ready) != 0 {
		t.Fatalf("expected nothing ready before seq 0 completes, got %v", ready)
	}
	if p := o.Pending(); p != 1 {
		t.Fatalf("expected 1 pending entry, got %d", p)
	}

	if ready := o.Complete(s2, []byte("c")); len(ready) != 0 {
		t.Fatalf("expected nothing ready while seq 0 still missing, got %v", ready)
	}

	ready := o.Complete(s0, []byte("a"))
	want := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	if !reflect.DeepEqual(ready, want) {
		t.Fatalf("expected contiguous flush once seq 0 arrives, got %v want %v", ready, want)
	}
	if p := o.Pending(); p != 0 {
		t.Fatalf("expected no pending entries after full flush, got %d", p)
	}
}

func TestResponseOrdererSequenceNumbersAreMonotonic(t *testing.T) {
	o := NewResponseOrderer()
	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		seq := o.Next()
		if seen[seq] {
			t.Fatalf("sequence number %d reused", seq)
		}
		seen[seq] = true
	}
}
