package replication

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/kvfabric/fabric/internal/cluster"
	"github.com/kvfabric/fabric/internal/config"
	"github.com/kvfabric/fabric/internal/store"
	"github.com/kvfabric/fabric/internal/transport"
	"github.com/kvfabric/fabric/internal/wire"
)

func listenLoopback(t *testing.T) *transport.Conn {
	t.Helper()
	c, err := transport.Listen(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func addrOf(c *transport.Conn) *net.UDPAddr {
	return c.LocalAddr().(*net.UDPAddr)
}

func buildTopology(t *testing.T, peerAddr, controllerAddr string) *config.Topology {
	t.Helper()
	text := "rack\nnode " + peerAddr + "\nnode 127.0.0.1:1\ncontroller " + controllerAddr + "\nrouter 127.0.0.1:2\n"
	topo, err := config.Parse(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	return topo
}

func TestHandleControlReplicationFansOutToRackPeers(t *testing.T) {
	peer := listenLoopback(t)
	home := listenLoopback(t)

	topo := buildTopology(t, addrOf(peer).String(), "127.0.0.1:3")
	members := cluster.NewMembership(topo, 16)
	// Put the home server's own socket at node 0 (the seeder's own slot,
	// which HandleControlReplication skips) and the peer at node 1, the
	// only other node in the rack.
	node0, _ := members.GetNode("rack0-node0")
	node0.Address = addrOf(home).String()
	node1, _ := members.GetNode("rack0-node1")
	node1.Address = addrOf(peer).String()

	st := store.New("home")
	st.Put("hot", []byte("v1"), 7)

	seeder := NewSeeder(0, 0, st, members, home, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4})
	if err := seeder.HandleControlReplication(42, []byte("hot")); err != nil {
		t.Fatal(err)
	}

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, _, release, err := peer.Recv()
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	codec := wire.LongCodec{Ident: wire.IdentLong}
	pkt, err := codec.Decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if pkt.Header.Op != wire.OpRCReq || pkt.Header.Version != 7 {
		t.Fatalf("unexpected RC_REQ header: %+v", pkt.Header)
	}
	if pkt.Replication == nil || string(pkt.Replication.Value) != "v1" {
		t.Fatalf("unexpected RC_REQ payload: %+v", pkt.Replication)
	}
}

func TestHandleControlReplicationIgnoresMissingKey(t *testing.T) {
	home := listenLoopback(t)
	topo := buildTopology(t, "127.0.0.1:1", "127.0.0.1:3")
	members := cluster.NewMembership(topo, 16)
	st := store.New("home")

	seeder := NewSeeder(0, 0, st, members, home, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4})
	if err := seeder.HandleControlReplication(42, []byte("missing")); err != nil {
		t.Fatalf("expected no error for a key this server does not hold, got %v", err)
	}
}

func TestHandleRCReqAppliesAndAcksCoordinator(t *testing.T) {
	router := listenLoopback(t)
	receiver := listenLoopback(t)

	topo := buildTopology(t, "127.0.0.1:1", "127.0.0.1:3")
	members := cluster.NewMembership(topo, 16)
	st := store.New("receiver")

	seeder := NewSeeder(1, 0, st, members, receiver, addrOf(router))
	pkt := &wire.Packet{
		Header:      wire.Header{Identifier: wire.IdentLong, Op: wire.OpRCReq, Keyhash: 42, Version: 9},
		Replication: &wire.ReplicationRequest{Key: []byte("hot"), Value: []byte("v9")},
	}
	if err := seeder.HandleRCReq(pkt); err != nil {
		t.Fatal(err)
	}

	item, ok := st.Get("hot")
	if !ok || string(item.Value) != "v9" || item.Version != 9 {
		t.Fatalf("expected local apply, got %+v ok=%v", item, ok)
	}

	router.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, _, release, err := router.Recv()
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	codec := wire.LongCodec{Ident: wire.IdentLong}
	ack, err := codec.Decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if ack.Header.Op != wire.OpRCAck || ack.Header.Version != 9 || ack.Header.ServerID != 1 {
		t.Fatalf("unexpected RC_ACK header: %+v", ack.Header)
	}
}

func TestHandleRCReqStaleVersionSendsNoAck(t *testing.T) {
	router := listenLoopback(t)
	receiver := listenLoopback(t)

	topo := buildTopology(t, "127.0.0.1:1", "127.0.0.1:3")
	members := cluster.NewMembership(topo, 16)
	st := store.New("receiver")
	st.Put("hot", []byte("v9"), 9)

	seeder := NewSeeder(1, 0, st, members, receiver, addrOf(router))
	stale := &wire.Packet{
		Header:      wire.Header{Identifier: wire.IdentLong, Op: wire.OpRCReq, Keyhash: 42, Version: 3},
		Replication: &wire.ReplicationRequest{Key: []byte("hot"), Value: []byte("v3")},
	}
	if err := seeder.HandleRCReq(stale); err != nil {
		t.Fatal(err)
	}

	router.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, _, err := router.Recv()
	if err == nil {
		t.Fatal("expected no RC_ACK for a stale RC_REQ")
	}
}
