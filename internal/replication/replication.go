// Package replication implements the rack-local replica-seeding
// exchange a home server runs once the coordinator decides a key is
// worth replicating: a REPLICATION control message triggers the home
// server to fan its current (version, value) out to every other node
// in its rack as RC_REQ, and each receiver that actually applies the
// write acks straight back to the coordinator, never to the home
// server.
package replication

import (
	"fmt"
	"net"

	"github.com/kvfabric/fabric/internal/cluster"
	"github.com/kvfabric/fabric/internal/store"
	"github.com/kvfabric/fabric/internal/transport"
	"github.com/kvfabric/fabric/internal/wire"
)

// Seeder drives both sides of the exchange for one server process.
type Seeder struct {
	nodeID  uint8 // this server's index within its rack
	rack    int
	store   *store.Store
	members *cluster.Membership
	conn    *transport.Conn
	router  *net.UDPAddr
	codec   wire.LongCodec
}

// NewSeeder builds a Seeder for the server at (rack, nodeID), sending
// RC_REQ/RC_ACK traffic over conn and acking to router (the
// coordinator's data-plane address).
func NewSeeder(nodeID uint8, rack int, st *store.Store, members *cluster.Membership, conn *transport.Conn, router *net.UDPAddr) *Seeder {
	return &Seeder{
		nodeID:  nodeID,
		rack:    rack,
		store:   st,
		members: members,
		conn:    conn,
		router:  router,
		codec:   wire.LongCodec{Ident: wire.IdentLong},
	}
}

// HandleControlReplication responds to a REPLICATION control message:
// if this server holds the key, it fans an RC_REQ carrying its current
// version and value out to every other node in its rack. A REPLICATION
// for a key this server does not hold is silently ignored — the
// coordinator only sends it to the key's home server, so this should
// not happen in practice, but a stale or misrouted message is harmless.
func (s *Seeder) HandleControlReplication(keyhash uint32, key []byte) error {
	item, ok := s.store.Get(string(key))
	if !ok {
		return nil
	}

	pkt := &wire.Packet{
		Header: wire.Header{
			Identifier: wire.IdentLong,
			Op:         wire.OpRCReq,
			Keyhash:    keyhash,
			ServerID:   s.nodeID,
			Version:    item.Version,
		},
		Replication: &wire.ReplicationRequest{Key: key, Value: item.Value},
	}
	buf, err := s.codec.Encode(pkt)
	if err != nil {
		return fmt.Errorf("replication: encode RC_REQ: %w", err)
	}

	var sendErr error
	for _, id := range s.members.NodesInRack(s.rack) {
		node, ok := s.members.GetNode(id)
		if !ok || node.Index == int(s.nodeID) {
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", node.Address)
		if err != nil {
			sendErr = err
			continue
		}
		if err := s.conn.SendTo(addr, buf); err != nil {
			sendErr = err
		}
	}
	return sendErr
}

// HandleRCReq applies an incoming RC_REQ's (version, value) to the
// local store and, if the write was actually applied, acks the
// coordinator with RC_ACK. A stale RC_REQ — one whose version loses to
// what this server already holds — gets no ack at all, and the
// coordinator does not retry: that server simply stays out of the
// key's replica set.
func (s *Seeder) HandleRCReq(pkt *wire.Packet) error {
	rep := pkt.Replication
	if rep == nil {
		return fmt.Errorf("replication: RC_REQ missing replication payload")
	}
	if !s.store.Put(string(rep.Key), rep.Value, pkt.Header.Version) {
		return nil
	}

	ack := &wire.Packet{
		Header: wire.Header{
			Identifier: wire.IdentLong,
			Op:         wire.OpRCAck,
			Keyhash:    pkt.Header.Keyhash,
			ServerID:   s.nodeID,
			Version:    pkt.Header.Version,
		},
	}
	buf, err := s.codec.Encode(ack)
	if err != nil {
		return fmt.Errorf("replication: encode RC_ACK: %w", err)
	}
	return s.conn.SendTo(s.router, buf)
}
