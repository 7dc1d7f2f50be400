package config

import (
	"strings"
	"testing"
)

const sample = `
# two racks, two nodes each
rack
node 10.0.0.1:9000
node 10.0.0.2:9000
controller 10.0.0.1:9100
rack
node 10.0.1.1:9000
node 10.0.1.2:9000
controller 10.0.1.1:9100
client 10.0.3.1:9300
client 10.0.3.2:9300
router 10.0.2.1:9200
`

func TestParseTopology(t *testing.T) {
	topo, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	if topo.NumRacks() != 2 {
		t.Fatalf("expected 2 racks, got %d", topo.NumRacks())
	}
	if topo.NumNodes() != 2 {
		t.Fatalf("expected 2 nodes per rack, got %d", topo.NumNodes())
	}
	if topo.Router.String() != "10.0.2.1:9200" {
		t.Fatalf("unexpected router address: %v", topo.Router)
	}
	if topo.Racks[1].Nodes[0].String() != "10.0.1.1:9000" {
		t.Fatalf("unexpected node address: %v", topo.Racks[1].Nodes[0])
	}
	if topo.Racks[0].Controller.String() != "10.0.0.1:9100" {
		t.Fatalf("unexpected controller address: %v", topo.Racks[0].Controller)
	}
	if len(topo.Clients) != 2 || topo.Clients[1].String() != "10.0.3.2:9300" {
		t.Fatalf("unexpected client list: %v", topo.Clients)
	}
}

func TestParseAcceptsLbSynonym(t *testing.T) {
	text := "rack\nnode 10.0.0.1:9000\ncontroller 10.0.0.1:9100\nlb 10.0.2.1:9200\n"
	topo, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	if topo.Router.String() != "10.0.2.1:9200" {
		t.Fatalf("'lb' should set the router address, got %v", topo.Router)
	}
}

func TestParseRejectsUnevenRacks(t *testing.T) {
	bad := `
rack
node 10.0.0.1:9000
controller 10.0.0.1:9100
rack
node 10.0.1.1:9000
node 10.0.1.2:9000
controller 10.0.1.1:9100
router 10.0.2.1:9200
`
	if _, err := Parse(strings.NewReader(bad)); err == nil {
		t.Fatal("expected an error for mismatched rack sizes")
	}
}

func TestParseRejectsMissingRouter(t *testing.T) {
	bad := `
rack
node 10.0.0.1:9000
controller 10.0.0.1:9100
`
	if _, err := Parse(strings.NewReader(bad)); err == nil {
		t.Fatal("expected an error for a missing router line")
	}
}

func TestParseRejectsUnknownDirective(t *testing.T) {
	bad := "rack\nnode 10.0.0.1:9000\nbogus 1.2.3.4:5\n"
	if _, err := Parse(strings.NewReader(bad)); err == nil {
		t.Fatal("expected an error for an unknown directive")
	}
}

func TestParseIgnoresCommentsAndBlankLines(t *testing.T) {
	topo, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	if len(topo.Racks) != 2 {
		t.Fatalf("comments/blank lines should be ignored, got %d racks", len(topo.Racks))
	}
}
