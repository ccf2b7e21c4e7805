package timeline

import "sync/atomic"

// Guard hands out increasing tickets so that a caller can tell whether a
// result it is about to show has been superseded by a newer request.
type Guard struct {
	gen atomic.Uint64
}

// Begin starts a new request and returns its ticket.
func (g *Guard) Begin() uint64 {
	return g.gen.Add(1)
}

// Current reports whether ticket belongs to the most recent request.
func (g *Guard) Current(ticket uint64) bool {
	return g.gen.Load() == ticket
}
