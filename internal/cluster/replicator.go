package cluster

import (
	"fmt"
	"net"

	"github.com/kvfabric/fabric/internal/transport"
	"github.com/kvfabric/fabric/internal/wire"
)

// ControlSender is the coordinator's half of the control channel: it
// pushes REPLICATION seeds at hot keys' home servers when the promotion
// loop admits them, and broadcasts RESET_REQ to the whole fleet when
// the admin surface asks for a clean slate between test scenarios.
//
// Nothing here retries. A seed that is lost simply leaves the key
// replicated on its home alone; it is not re-sent while the key stays in
// the R-set, since the promotion loop seeds only keys it newly admits.
type ControlSender struct {
	members *Membership
	conn    *transport.Conn
	ctrl    wire.ControlCodec
}

// NewControlSender builds a sender over the coordinator's data socket.
func NewControlSender(members *Membership, conn *transport.Conn) *ControlSender {
	return &ControlSender{members: members, conn: conn}
}

// SendReplicationSeed tells a newly promoted key's home server to fan
// its current value out to its rack peers. The home lives in the tail
// rack — reads are served there, so that is where replica selection
// needs members.
func (c *ControlSender) SendReplicationSeed(keyhash uint32, key []byte, home uint8) error {
	rack := c.members.NumRacks() - 1
	node, ok := c.members.GetNode(nodeID(rack, int(home)))
	if !ok {
		return fmt.Errorf("cluster: no node at rack %d index %d", rack, home)
	}
	addr, err := net.ResolveUDPAddr("udp", node.Address)
	if err != nil {
		return fmt.Errorf("cluster: resolve %s: %w", node.Address, err)
	}

	buf, err := c.ctrl.Encode(&wire.ControlMessage{
		Type:    wire.CtrlReplication,
		Keyhash: keyhash,
		Key:     key,
	})
	if err != nil {
		return fmt.Errorf("cluster: encode replication seed: %w", err)
	}
	return c.conn.SendTo(addr, buf)
}

// BroadcastReset sends RESET_REQ to every node in every rack and
// reports how many sends succeeded. Replies arrive asynchronously on
// the coordinator's socket; the caller does not wait for them.
func (c *ControlSender) BroadcastReset() (sent int, err error) {
	buf, encErr := c.ctrl.Encode(&wire.ControlMessage{Type: wire.CtrlResetReq})
	if encErr != nil {
		return 0, fmt.Errorf("cluster: encode reset: %w", encErr)
	}
	for _, node := range c.members.All() {
		addr, resolveErr := net.ResolveUDPAddr("udp", node.Address)
		if resolveErr != nil {
			err = resolveErr
			continue
		}
		if sendErr := c.conn.SendTo(addr, buf); sendErr != nil {
			err = sendErr
			continue
		}
		sent++
	}
	return sent, err
}
