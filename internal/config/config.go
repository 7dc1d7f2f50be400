// Package config parses the deployment topology file shared by every
// fabric binary: how many racks, which nodes live in each rack, where
// the coordinator (the "router", in the line-format's own words) binds,
// and which controller address fronts each rack.
package config

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
)

// Address is a host:port pair, kept as separate fields so callers can
// build *net.UDPAddr without re-splitting a string.
type Address struct {
	Host string
	Port string
}

// String renders the address back into host:port form.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, a.Port)
}

// UDPAddr resolves the address as a UDP endpoint.
func (a Address) UDPAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", a.String())
}

// Rack is one rack's worth of nodes plus the controller address that
// fronts it.
type Rack struct {
	Nodes      []Address
	Controller Address
}

// Topology is the parsed deployment description: a slice of racks (each
// with a fixed node count, per the directive format's own invariant),
// the single coordinator ("lb"/"router") address every node, client,
// and decrementor sends control and data traffic through, and the
// deployment's client endpoints, indexed by the wire header's
// client_id.
type Topology struct {
	Racks   []Rack
	Router  Address
	Clients []Address
}

// NumRacks returns the rack count.
func (t *Topology) NumRacks() int { return len(t.Racks) }

// NumNodes returns the per-rack node count. Every rack has the same
// count; Load enforces this.
func (t *Topology) NumNodes() int {
	if len(t.Racks) == 0 {
		return 0
	}
	return len(t.Racks[0].Nodes)
}

// Load reads a topology file from disk.
func Load(path string) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the directive-line topology format:
//
//	rack
//	node host:port
//	node host:port
//	controller host:port
//	rack
//	node host:port
//	node host:port
//	controller host:port
//	client host:port
//	lb host:port
//
// "rack" opens a new rack and closes the previous one, if any. "node" appends to the rack currently open. "controller"
// records the address fronting the rack currently open. "client"
// appends a deployment-wide client endpoint; its position in the file
// is the wire header's client_id. "lb" — "router" is accepted as a
// synonym — records the single coordinator address for the whole
// deployment. Blank lines and lines starting with "#" are ignored.
func Parse(r io.Reader) (*Topology, error) {
	var (
		topo       Topology
		cur        *Rack
		haveRouter bool
	)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])

		switch cmd {
		case "rack":
			if cur != nil {
				topo.Racks = append(topo.Racks, *cur)
			}
			cur = &Rack{}

		case "node":
			if cur == nil {
				return nil, fmt.Errorf("config: line %d: 'node' before any 'rack'", lineNo)
			}
			addr, err := parseAddr(fields, lineNo, "node")
			if err != nil {
				return nil, err
			}
			cur.Nodes = append(cur.Nodes, addr)

		case "controller":
			if cur == nil {
				return nil, fmt.Errorf("config: line %d: 'controller' before any 'rack'", lineNo)
			}
			addr, err := parseAddr(fields, lineNo, "controller")
			if err != nil {
				return nil, err
			}
			cur.Controller = addr

		case "client":
			addr, err := parseAddr(fields, lineNo, "client")
			if err != nil {
				return nil, err
			}
			topo.Clients = append(topo.Clients, addr)

		case "lb", "router":
			addr, err := parseAddr(fields, lineNo, cmd)
			if err != nil {
				return nil, err
			}
			topo.Router = addr
			haveRouter = true

		default:
			return nil, fmt.Errorf("config: line %d: unknown directive %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cur != nil {
		topo.Racks = append(topo.Racks, *cur)
	}

	if len(topo.Racks) == 0 {
		return nil, fmt.Errorf("config: no racks defined")
	}
	want := len(topo.Racks[0].Nodes)
	for i, rack := range topo.Racks {
		if len(rack.Nodes) != want {
			return nil, fmt.Errorf("config: rack %d has %d nodes, want %d", i, len(rack.Nodes), want)
		}
		if rack.Controller == (Address{}) {
			return nil, fmt.Errorf("config: rack %d missing a 'controller' line", i)
		}
	}
	if !haveRouter {
		return nil, fmt.Errorf("config: missing 'lb' (or 'router') line")
	}

	return &topo, nil
}

func parseAddr(fields []string, lineNo int, directive string) (Address, error) {
	if len(fields) != 2 {
		return Address{}, fmt.Errorf("config: line %d: '%s' requires one host:port argument", lineNo, directive)
	}
	host, port, err := net.SplitHostPort(fields[1])
	if err != nil {
		return Address{}, fmt.Errorf("config: line %d: %w", lineNo, err)
	}
	return Address{Host: host, Port: port}, nil
}
