package http

import (
	"sync"

	"github.com/grifitth12/absen-siswa/internal/session"
)

// NavigationLog is the session navigator of the HTTP surface. It remembers
// the latest destination so handlers can hand it back as a redirect hint.
type NavigationLog struct {
	mu   sync.Mutex
	seq  uint64
	last session.Destination
}

func (n *NavigationLog) Navigate(dest session.Destination) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	n.last = dest
}

// Mark returns a position to pass to Since.
func (n *NavigationLog) Mark() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seq
}

// Since returns the latest destination signalled after mark, if any.
func (n *NavigationLog) Since(mark uint64) (session.Destination, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.seq == mark {
		return "", false
	}
	return n.last, true
}
