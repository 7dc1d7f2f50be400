// Package server implements a back-end node's request pipeline: the
// per-packet dispatch that turns coordinator-routed GET/PUT/DEL traffic
// into store operations and replies, forwards writes down the
// inter-rack chain, and answers the control channel (replication seeds
// and store resets).
//
// A server never talks to a client directly. Replies go to the
// coordinator, whose data plane folds the carried version into the
// R-set and forwards the packet to the client_id it names — that
// round trip is what grows a hot key's replica set as writes land on
// new servers.
package server

import (
	"encoding/binary"
	"log"
	"net"
	"sync/atomic"

	"github.com/kvfabric/fabric/internal/cluster"
	"github.com/kvfabric/fabric/internal/replication"
	"github.com/kvfabric/fabric/internal/store"
	"github.com/kvfabric/fabric/internal/transport"
	"github.com/kvfabric/fabric/internal/wire"
)

// Server is one back-end node: its position in the topology, its store,
// and the sockets it answers on.
type Server struct {
	rack  int
	index int

	store   *store.Store
	seeder  *replication.Seeder
	members *cluster.Membership
	conn    *transport.Conn
	router  *net.UDPAddr

	codec wire.LongCodec
	ctrl  wire.ControlCodec

	load       atomic.Int64
	sendErrors atomic.Uint64
}

// New builds the server at (rack, index). conn is the node's bound data
// socket; router is the coordinator's address, where every reply and
// every RC_ACK goes.
func New(rack, index int, st *store.Store, members *cluster.Membership, conn *transport.Conn, router *net.UDPAddr) *Server {
	return &Server{
		rack:    rack,
		index:   index,
		store:   st,
		seeder:  replication.NewSeeder(uint8(index), rack, st, members, conn, router),
		members: members,
		conn:    conn,
		router:  router,
		codec:   wire.LongCodec{Ident: wire.IdentLong},
	}
}

// Store exposes the node's key space for the admin surface.
func (s *Server) Store() *store.Store { return s.store }

// Load reports the node's current load counter, clamped to the wire
// field's 16-bit range.
func (s *Server) Load() uint16 {
	l := s.load.Load()
	if l < 0 {
		return 0
	}
	if l > 0xFFFF {
		return 0xFFFF
	}
	return uint16(l)
}

// SendErrors returns the cumulative transmit-failure count.
func (s *Server) SendErrors() uint64 { return s.sendErrors.Load() }

// HandlePacket dispatches one received datagram. Unparsable packets and
// packets for another codec are dropped silently.
func (s *Server) HandlePacket(buf []byte, from *net.UDPAddr) {
	if len(buf) < 2 {
		return
	}
	switch wire.Identifier(binary.BigEndian.Uint16(buf[0:2])) {
	case wire.IdentControl:
		msg, err := s.ctrl.Decode(buf)
		if err != nil {
			return
		}
		s.handleControl(msg, from)
	case wire.IdentLong, wire.IdentStatic:
		codec := wire.LongCodec{Ident: wire.Identifier(binary.BigEndian.Uint16(buf[0:2]))}
		pkt, err := codec.Decode(buf)
		if err != nil {
			return
		}
		s.handleData(pkt)
	}
}

func (s *Server) handleData(pkt *wire.Packet) {
	h := pkt.Header
	switch h.Op {
	case wire.OpGet:
		s.load.Add(1)
		s.handleGet(pkt)
	case wire.OpPut, wire.OpDel, wire.OpPutFwd:
		s.load.Add(1)
		s.handleWrite(pkt)
	case wire.OpRCReq:
		if err := s.seeder.HandleRCReq(pkt); err != nil {
			log.Printf("server %d/%d: rc_req: %v", s.rack, s.index, err)
		}
	case wire.OpMgrReq:
		s.handleMgrReq(pkt)
	case wire.OpDec:
		s.load.Add(-int64(h.Load))
	}
}

func (s *Server) handleGet(pkt *wire.Packet) {
	req := pkt.Request
	if req == nil {
		return
	}
	rep := &wire.Reply{
		ReqID:   req.ReqID,
		ReqTime: req.ReqTime,
		InnerOp: wire.OpGet,
	}
	version := wire.BaseVersion
	if item, ok := s.store.Get(string(req.Key)); ok {
		rep.Result = wire.ResultOK
		rep.Value = item.Value
		version = item.Version
	} else {
		rep.Result = wire.ResultNotFound
	}
	s.reply(pkt, wire.OpRepR, version, rep)
}

// handleWrite applies a PUT, DEL, or chain-forwarded PUT_FWD at the
// version the coordinator stamped, then either forwards the write to
// the same-index node in the next rack or, at the tail, replies. The
// reply always carries the incoming version — even when a stale write
// lost the comparison — so the coordinator and the client observe the
// coordinator's ordering, not this node's.
func (s *Server) handleWrite(pkt *wire.Packet) {
	req := pkt.Request
	if req == nil {
		return
	}
	del := pkt.Header.Op == wire.OpDel
	if del {
		s.store.Delete(string(req.Key), pkt.Header.Version)
	} else {
		s.store.Put(string(req.Key), req.Value, pkt.Header.Version)
	}
	innerOp := wire.OpPut
	if del {
		innerOp = wire.OpDel
	}

	if next, ok := s.members.ChainNext(s.rack, s.index); ok {
		s.forwardChain(pkt, next)
		return
	}

	rep := &wire.Reply{
		ReqID:   req.ReqID,
		ReqTime: req.ReqTime,
		InnerOp: innerOp,
		Result:  wire.ResultOK,
	}
	s.reply(pkt, wire.OpRepW, pkt.Header.Version, rep)
}

// forwardChain re-tags a PUT as PUT_FWD (a DEL stays DEL) and hands it to the same-index
// node in the next rack. The forwarded packet keeps the coordinator's
// version, the original request payload, and the client_id, so the tail
// can reply as if it had been hit directly.
func (s *Server) forwardChain(pkt *wire.Packet, next cluster.Node) {
	fwd := &wire.Packet{
		Header:  pkt.Header,
		Request: pkt.Request,
	}
	fwd.Header.Op = wire.OpPutFwd
	if pkt.Header.Op == wire.OpDel {
		fwd.Header.Op = wire.OpDel
	}
	buf, err := s.codec.Encode(fwd)
	if err != nil {
		log.Printf("server %d/%d: encode chain forward: %v", s.rack, s.index, err)
		s.sendErrors.Add(1)
		return
	}
	addr, err := net.ResolveUDPAddr("udp", next.Address)
	if err != nil {
		log.Printf("server %d/%d: resolve chain peer %s: %v", s.rack, s.index, next.Address, err)
		s.sendErrors.Add(1)
		return
	}
	if err := s.conn.SendTo(addr, buf); err != nil {
		log.Printf("server %d/%d: chain forward to %s: %v", s.rack, s.index, next.Address, err)
		s.sendErrors.Add(1)
	}
}

// handleMgrReq acknowledges a migration request: the coordinator is
// told, via MGR_ACK, that this node holds the named keyhash at the
// carried version. The ack is not forwarded anywhere by the data plane;
// it only feeds the R-set.
func (s *Server) handleMgrReq(pkt *wire.Packet) {
	ack := &wire.Packet{
		Header: wire.Header{
			Identifier: wire.IdentLong,
			Op:         wire.OpMgrAck,
			Keyhash:    pkt.Header.Keyhash,
			ClientID:   pkt.Header.ClientID,
			ServerID:   uint8(s.index),
			Load:       s.Load(),
			Version:    pkt.Header.Version,
		},
	}
	s.send(ack)
}

func (s *Server) handleControl(msg *wire.ControlMessage, from *net.UDPAddr) {
	switch msg.Type {
	case wire.CtrlReplication:
		if err := s.seeder.HandleControlReplication(msg.Keyhash, msg.Key); err != nil {
			log.Printf("server %d/%d: replication seed: %v", s.rack, s.index, err)
		}
	case wire.CtrlResetReq:
		s.store.Clear()
		s.load.Store(0)
		buf, err := s.ctrl.Encode(&wire.ControlMessage{Type: wire.CtrlResetReply})
		if err != nil {
			return
		}
		if err := s.conn.SendTo(from, buf); err != nil {
			log.Printf("server %d/%d: reset reply: %v", s.rack, s.index, err)
			s.sendErrors.Add(1)
		}
	}
}

// reply sends a REP_R/REP_W for pkt back through the coordinator,
// carrying this node's id and load so the data plane can fold the
// version into the R-set before forwarding to the client.
func (s *Server) reply(pkt *wire.Packet, op wire.OpType, version uint32, rep *wire.Reply) {
	out := &wire.Packet{
		Header: wire.Header{
			Identifier: wire.IdentLong,
			Op:         op,
			Keyhash:    pkt.Header.Keyhash,
			ClientID:   pkt.Header.ClientID,
			ServerID:   uint8(s.index),
			Load:       s.Load(),
			Version:    version,
		},
		Reply: rep,
	}
	s.send(out)
}

func (s *Server) send(pkt *wire.Packet) {
	buf, err := s.codec.Encode(pkt)
	if err != nil {
		log.Printf("server %d/%d: encode: %v", s.rack, s.index, err)
		s.sendErrors.Add(1)
		return
	}
	if err := s.conn.SendTo(s.router, buf); err != nil {
		log.Printf("server %d/%d: send to router: %v", s.rack, s.index, err)
		s.sendErrors.Add(1)
	}
}
