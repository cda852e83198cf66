package xlate

import "sync"

// FramePool provides reusable buffers for frame I/O on both the TUN and
// raw-socket sides of the bridge. Callers Get() a *[]byte before reading,
// and Put() it back as soon as the bytes read have been copied out; the
// translation itself works on that copy.
//
// Pattern: gVisor netstack sync.Pool. The pool stores *[]byte (pointer to
// slice) to avoid an interface allocation on Get()/Put().
//
// Usage:
//
//	bufp := FramePool.Get().(*[]byte)
//	defer FramePool.Put(bufp)
//	n, err := conn.Read(*bufp)
var FramePool = sync.Pool{
	New: func() any {
		buf := make([]byte, MaxFrameSize)
		return &buf
	},
}
