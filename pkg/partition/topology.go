package partition

// Peer is one worker's view of the linear chain.
type Peer struct {
	ID   int
	Up   int
	Down int
}

// HasUp reports whether the worker exchanges rows with the worker above it.
func (p Peer) HasUp() bool { return p.Up != NoNeighbor }

// HasDown reports whether the worker exchanges rows with the worker below it.
func (p Peer) HasDown() bool { return p.Down != NoNeighbor }

// Chain builds the topology for a plan. A link exists only when both ends
// own rows, so zero-row workers sit outside the chain and never exchange
// halos.
func Chain(plan []Partition) []Peer {
	peers := make([]Peer, len(plan))
	for id := range plan {
		peer := Peer{ID: id, Up: NoNeighbor, Down: NoNeighbor}
		if !plan[id].Empty() {
			if id > 0 && !plan[id-1].Empty() {
				peer.Up = id - 1
			}
			if id < len(plan)-1 && !plan[id+1].Empty() {
				peer.Down = id + 1
			}
		}
		peers[id] = peer
	}
	return peers
}
