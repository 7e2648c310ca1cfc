package clock

import "sync/atomic"

// Manual is types.Clock whose height is moved by the test.
type Manual struct {
	height atomic.Uint64
}

func New(height uint64) *Manual {
	c := &Manual{}
	c.height.Store(height)
	return c
}

func (c *Manual) CurrentHeight() uint64 {
	return c.height.Load()
}

func (c *Manual) Set(height uint64) {
	c.height.Store(height)
}

func (c *Manual) Advance(n uint64) uint64 {
	return c.height.Add(n)
}
