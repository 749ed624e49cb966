package encryption

import "sync"

// bufferPool hands out byte slices from a small set of size classes so the
// record-transform engine doesn't allocate fresh buffers for every record
// it encrypts or decrypts. Buffers larger than the biggest class are
// allocated directly and never pooled — the classes exist to absorb the
// common case (small record values), not to bound memory for pathological
// inputs.
type bufferPool struct {
	pools [len(bufferSizeClasses)]sync.Pool
}

var bufferSizeClasses = [...]int{1 << 10, 1 << 14, 1 << 18, 1 << 22} // 1KiB, 16KiB, 256KiB, 4MiB

func newBufferPool() *bufferPool {
	bp := &bufferPool{}
	for i, size := range bufferSizeClasses {
		size := size
		bp.pools[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return bp
}

func (bp *bufferPool) classFor(n int) int {
	for i, size := range bufferSizeClasses {
		if n <= size {
			return i
		}
	}
	return -1
}

// Get returns a buffer with at least n bytes of capacity. The returned
// slice has length n; callers that need to grow it should re-slice, not
// append past cap without checking.
func (bp *bufferPool) Get(n int) []byte {
	class := bp.classFor(n)
	if class < 0 {
		return make([]byte, n)
	}
	bufPtr := bp.pools[class].Get().(*[]byte)
	return (*bufPtr)[:n]
}

// Put returns buf to its size class. Safe to call with a buffer obtained
// directly via make (falls outside every class and is silently dropped),
// and safe to call more than once is NOT guaranteed — double-release is a
// caller bug, not something this pool tries to detect.
func (bp *bufferPool) Put(buf []byte) {
	class := bp.classFor(cap(buf))
	if class < 0 || cap(buf) != bufferSizeClasses[class] {
		return
	}
	full := buf[:cap(buf)]
	bp.pools[class].Put(&full)
}
