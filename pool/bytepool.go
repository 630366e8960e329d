// File: pool/bytepool.go
// Author: clustersched
//
// BufferPool supplies the reusable byte buffers a Channel serializes each
// outgoing frame's payload into: a size-classed sync.Pool with
// get-or-allocate-and-recycle semantics. There is nothing here but plain
// reuse -- this transport has no kernel-bypass or NUMA-topology concerns
// (see DESIGN.md).
package pool

import "sync"

// sizeClasses are the bucket boundaries a request is rounded up to,
// matching the handful of frame sizes a scheduler's control-plane
// messages realistically take (small headers, larger payloads).
var sizeClasses = []int{64, 256, 1024, 8192, 65536, 262144}

// BufferPool returns byte slices sized to the nearest size class at or
// above the request, recycled via a sync.Pool per class. Requests larger
// than the biggest class fall back to a fresh, unpooled allocation.
type BufferPool struct {
	pools [6]sync.Pool
}

// New constructs an empty BufferPool; each size class's sync.Pool lazily
// allocates on first Get.
func New() *BufferPool {
	bp := &BufferPool{}
	for i, sz := range sizeClasses {
		sz := sz
		bp.pools[i].New = func() any {
			buf := make([]byte, sz)
			return &buf
		}
	}
	return bp
}

// Get returns a buffer of length n. The returned slice's capacity may
// exceed n; callers must not rely on cap(buf) == n.
func (bp *BufferPool) Get(n int) []byte {
	idx := classFor(n)
	if idx < 0 {
		return make([]byte, n)
	}
	buf := bp.pools[idx].Get().(*[]byte)
	return (*buf)[:n]
}

// Put returns a buffer previously obtained from Get back to its size
// class's pool. Buffers not obtained from Get (e.g. the make([]byte, n)
// fallback for oversized requests) are silently dropped.
func (bp *BufferPool) Put(buf []byte) {
	idx := classFor(cap(buf))
	if idx < 0 || cap(buf) != sizeClasses[idx] {
		return
	}
	full := buf[:cap(buf)]
	bp.pools[idx].Put(&full)
}

func classFor(n int) int {
	for i, sz := range sizeClasses {
		if n <= sz {
			return i
		}
	}
	return -1
}
