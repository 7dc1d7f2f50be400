package cluster

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/kvfabric/fabric/internal/config"
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

func TestSendReplicationSeedTargetsTailRackHome(t *testing.T) {
	home := listenLoopback(t)
	sender := listenLoopback(t)

	text := "rack\nnode 127.0.0.1:1\ncontroller 127.0.0.1:2\n" +
		"rack\nnode " + home.LocalAddr().String() + "\ncontroller 127.0.0.1:3\n" +
		"router 127.0.0.1:4\n"
	topo, err := config.Parse(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	members := NewMembership(topo, 16)

	cs := NewControlSender(members, sender)
	if err := cs.SendReplicationSeed(42, []byte("hot"), 0); err != nil {
		t.Fatal(err)
	}

	home.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, _, release, err := home.Recv()
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	var ctrl wire.ControlCodec
	msg, err := ctrl.Decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != wire.CtrlReplication || msg.Keyhash != 42 || string(msg.Key) != "hot" {
		t.Fatalf("unexpected seed message: %+v", msg)
	}
}

func TestBroadcastResetReachesEveryNode(t *testing.T) {
	a := listenLoopback(t)
	b := listenLoopback(t)
	sender := listenLoopback(t)

	text := "rack\nnode " + a.LocalAddr().String() + "\nnode " + b.LocalAddr().String() +
		"\ncontroller 127.0.0.1:2\nrouter 127.0.0.1:4\n"
	topo, err := config.Parse(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	members := NewMembership(topo, 16)

	cs := NewControlSender(members, sender)
	sent, err := cs.BroadcastReset()
	if err != nil {
		t.Fatal(err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 sends, got %d", sent)
	}

	var ctrl wire.ControlCodec
	for _, conn := range []*transport.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		payload, _, release, err := conn.Recv()
		if err != nil {
			t.Fatal(err)
		}
		msg, err := ctrl.Decode(payload)
		release()
		if err != nil {
			t.Fatal(err)
		}
		if msg.Type != wire.CtrlResetReq {
			t.Fatalf("expected RESET_REQ, got %v", msg.Type)
		}
	}
}
