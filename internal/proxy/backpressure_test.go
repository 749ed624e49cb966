package proxy

import (
	"io"
	"net"
	"testing"
	"time"
)

func TestDirectionalWriterWritesEnqueuedFrames(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	w := newDirectionalWriter(server, 0, 0)
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 5)
		n, _ := io.ReadFull(client, buf)
		done <- buf[:n]
	}()

	w.Enqueue([]byte("hello"))
	select {
	case got := <-done:
		if string(got) != "hello" {
			t.Fatalf("got %q want %q", got, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the enqueued frame to be written")
	}
	w.Close()
}

func TestDirectionalWriterWaitForCapacityDisabledWhenHighIsZero(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	w := newDirectionalWriter(server, 0, 0)
	done := make(chan struct{})
	go func() {
		w.WaitForCapacity() // must return immediately, no reader draining the pipe
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForCapacity should return immediately when high watermark is 0")
	}
}

func TestDirectionalWriterWaitForCapacityBlocksAboveHighWatermark(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	w := newDirectionalWriter(server, 4, 0) // high watermark smaller than one frame

	// Nothing reads from client yet, so the writer goroutine blocks on Write
	// and pending stays above the high watermark.
	w.Enqueue([]byte("hello"))

	blocked := make(chan struct{})
	go func() {
		w.WaitForCapacity()
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("expected WaitForCapacity to block while pending exceeds the high watermark")
	case <-time.After(100 * time.Millisecond):
	}

	// Drain the pipe so the writer goroutine's Write completes and pending
	// drops to (and below) the low watermark, unblocking the waiter.
	buf := make([]byte, 5)
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("expected WaitForCapacity to unblock once pending drained to the low watermark")
	}
	w.Close()
}

func TestDirectionalWriterErrRecordsFirstWriteFailure(t *testing.T) {
	server, client := net.Pipe()
	client.Close() // closing the peer makes subsequent writes to server fail

	w := newDirectionalWriter(server, 0, 0)
	w.Enqueue([]byte("will fail"))
	w.Close()

	if w.Err() == nil {
		t.Fatal("expected a write error to have been recorded")
	}
}
