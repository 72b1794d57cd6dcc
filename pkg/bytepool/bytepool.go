// Package bytepool implements a pool of equally sized chunk buffers used when
// streaming file contents over transfer connections.
package bytepool

import "sync"

// BytePool is a cached pool of reusable byte slices.
type BytePool struct {
	pool   sync.Pool
	length int
}

// New allocates a new BytePool with slices of equal length and capacity.
func New(length int) *BytePool {
	bp := &BytePool{length: length}
	bp.pool.New = func() interface{} {
		b := make([]byte, length)
		return &b
	}
	return bp
}

// Len returns the length of the slices handed out by the pool.
func (bp *BytePool) Len() int { return bp.length }

// Get returns a byte slice from the pool.
func (bp *BytePool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns a byte slice to the pool. Slices of a foreign size are dropped.
func (bp *BytePool) Put(b *[]byte) {
	if cap(*b) != bp.length {
		return
	}
	*b = (*b)[:bp.length]
	bp.pool.Put(b)
}
