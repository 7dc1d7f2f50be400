package cluster

import (
	"fmt"
	"sync"

	"github.com/kvfabric/fabric/internal/config"
)

// Node is one server process: a position in the deployment topology
// (rack index, node index) plus its UDP address and liveness.
type Node struct {
	ID      string `json:"id"` // "rack<r>-node<n>"
	Rack    int    `json:"rack"`
	Index   int    `json:"index"`
	Address string `json:"address"`
	IsAlive bool   `json:"is_alive"`
}

// nodeID formats the conventional rack/index identifier used throughout
// the fabric's control-plane messages and admin output.
func nodeID(rack, index int) string {
	return fmt.Sprintf("rack%d-node%d", rack, index)
}

// Membership tracks every node in the deployment topology and shards
// the keyhash space across coordinator replicas via a consistent-hash
// Ring. It is seeded once from a parsed config.Topology at startup;
// Join/Leave afterward add and remove coordinator replicas on the ring,
// and SetAlive records a node's liveness.
type Membership struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	racks [][]string // rack index -> ordered node IDs, for chain replication's "same index, next rack" lookup
	ring  *Ring
}

// NewMembership builds membership from a parsed topology. vnodes
// controls the ring's virtual-node count per coordinator replica (not
// per data node — the ring only ever holds coordinator replica ids,
// added separately via Join once the coordinator knows its peers).
func NewMembership(topo *config.Topology, vnodes int) *Membership {
	m := &Membership{
		nodes: make(map[string]*Node),
		ring:  NewRing(vnodes),
	}
	for r, rack := range topo.Racks {
		var ids []string
		for i, addr := range rack.Nodes {
			id := nodeID(r, i)
			m.nodes[id] = &Node{ID: id, Rack: r, Index: i, Address: addr.String(), IsAlive: true}
			ids = append(ids, id)
		}
		m.racks = append(m.racks, ids)
	}
	return m
}

// Join adds a coordinator replica to the sharding ring.
func (m *Membership) Join(replicaID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring.AddNode(replicaID)
	return nil
}

// Leave removes a coordinator replica from the sharding ring.
func (m *Membership) Leave(replicaID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring.RemoveNode(replicaID)
}

// GetNode returns the data-plane node for a given "rack<r>-node<n>" id.
func (m *Membership) GetNode(id string) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	return n, ok
}

// SetAlive marks a node's liveness. An unknown id is ignored.
func (m *Membership) SetAlive(id string, alive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		n.IsAlive = alive
	}
}

// All returns a copy of every data-plane node.
func (m *Membership) All() []Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, *n)
	}
	return out
}

// ChainNext returns the node at the same index in the next rack over
// from (rack, index), implementing the chain-replication hop a head
// rack's PUT_FWD targets. ok is false for the tail rack, which has
// nowhere further to forward to.
func (m *Membership) ChainNext(rack, index int) (Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rack+1 >= len(m.racks) {
		return Node{}, false
	}
	id := m.racks[rack+1][index]
	return *m.nodes[id], true
}

// Ring exposes the coordinator-replica sharding ring.
func (m *Membership) Ring() *Ring {
	return m.ring
}

// NumRacks reports how many racks the topology defines.
func (m *Membership) NumRacks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.racks)
}

// NodesInRack returns the node ids belonging to rack, in index order.
func (m *Membership) NodesInRack(rack int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rack < 0 || rack >= len(m.racks) {
		return nil
	}
	out := make([]string, len(m.racks[rack]))
	copy(out, m.racks[rack])
	return out
}
