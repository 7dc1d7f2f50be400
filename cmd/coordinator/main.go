// cmd/coordinator is the fabric's load balancer: the UDP data plane
// that classifies, versions, and forwards every packet, plus the
// control plane that promotes hot keys into the replicated set.
//
// Example — single replica, default protocol:
//
//	./coordinator --config topology.conf
//
// Example — two control-plane replicas sharding the keyhash space:
//
//	./coordinator --config topo-a.conf --replica-id lb0 --peers lb0,lb1
//	./coordinator --config topo-b.conf --replica-id lb1 --peers lb0,lb1
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kvfabric/fabric/internal/api"
	"github.com/kvfabric/fabric/internal/cluster"
	"github.com/kvfabric/fabric/internal/config"
	"github.com/kvfabric/fabric/internal/fabric"
	"github.com/kvfabric/fabric/internal/transport"
	"github.com/kvfabric/fabric/internal/wire"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "Topology file (required)")
	workers := flag.Int("workers", 4, "Data-plane worker goroutines")
	protocol := flag.String("protocol", "router", "Protocol variant: router|static|netcache")
	adminAddr := flag.String("admin", ":8080", "Admin HTTP listen address")
	replicaID := flag.String("replica-id", "lb0", "This coordinator replica's id")
	peersFlag := flag.String("peers", "", "Comma-separated coordinator replica ids sharing the control plane (includes self)")
	epoch := flag.Duration("epoch", 10*time.Millisecond, "Stats epoch between promotion sweeps")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("FATAL: --config is required")
	}

	var ident wire.Identifier
	switch *protocol {
	case "router":
		ident = wire.IdentLong
	case "static":
		ident = wire.IdentStatic
	case "netcache":
		ident = wire.IdentLong // netcache additionally answers compact packets
	default:
		log.Fatalf("FATAL: unknown protocol %q (want router, static, or netcache)", *protocol)
	}

	// ── Topology ───────────────────────────────────────────────────────────
	topo, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	membership := cluster.NewMembership(topo, 150)
	if *peersFlag != "" {
		for _, id := range strings.Split(*peersFlag, ",") {
			membership.Join(strings.TrimSpace(id))
		}
	} else {
		membership.Join(*replicaID)
	}

	// ── Fabric ─────────────────────────────────────────────────────────────
	fab := fabric.NewFabric(topo.NumNodes())
	if *peersFlag != "" {
		ring := membership.Ring()
		self := *replicaID
		fab.SetShardFilter(func(keyhash uint32) bool {
			return ring.ShardFor(keyhash) == self
		})
	}

	// ── Data socket ────────────────────────────────────────────────────────
	laddr, err := topo.Router.UDPAddr()
	if err != nil {
		log.Fatalf("FATAL: resolve router address: %v", err)
	}
	conn, err := transport.Listen(laddr)
	if err != nil {
		log.Fatalf("FATAL: listen %v: %v", laddr, err)
	}
	defer conn.Close()

	control := cluster.NewControlSender(membership, conn)

	co := &coordinator{
		fab:   fab,
		conn:  conn,
		codec: wire.LongCodec{Ident: ident},
		topo:  topo,
	}
	if *protocol == "netcache" {
		co.netcache = fabric.NewNetcacheTable()
	}
	if err := co.resolveAddrs(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// ── Data-plane workers ─────────────────────────────────────────────────
	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			co.runWorker()
		}()
	}

	// ── Promotion loop ─────────────────────────────────────────────────────
	stopPromotion := make(chan struct{})
	go co.runPromotionLoop(*epoch, control, stopPromotion)

	// ── Admin HTTP server ──────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(), api.Recovery())
	api.NewHandler(fab, membership, topo, control, *replicaID).Register(router)

	srv := &http.Server{
		Addr:         *adminAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("coordinator %s: data plane on %v (%d workers, %s), admin on %s",
			*replicaID, laddr, *workers, *protocol, *adminAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("admin server error: %v", err)
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("coordinator %s: shutting down", *replicaID)
	close(stopPromotion)
	conn.Close() // unblocks the workers

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("admin shutdown error: %v", err)
	}
	wg.Wait()
}

// coordinator bundles the data plane's shared state: the fabric
// singleton, the bound socket, and the resolved destination tables.
type coordinator struct {
	fab      *fabric.Fabric
	conn     *transport.Conn
	codec    wire.LongCodec
	netcache *fabric.NetcacheTable
	topo     *config.Topology

	serverAddrs [][]*net.UDPAddr // rack -> index -> address
	clientAddrs []*net.UDPAddr   // client_id -> address
}

func (co *coordinator) resolveAddrs() error {
	for _, rack := range co.topo.Racks {
		var addrs []*net.UDPAddr
		for _, node := range rack.Nodes {
			a, err := node.UDPAddr()
			if err != nil {
				return err
			}
			addrs = append(addrs, a)
		}
		co.serverAddrs = append(co.serverAddrs, addrs)
	}
	for _, cl := range co.topo.Clients {
		a, err := cl.UDPAddr()
		if err != nil {
			return err
		}
		co.clientAddrs = append(co.clientAddrs, a)
	}
	return nil
}

// runWorker is one data-plane goroutine: drain a batch of datagrams,
// process each against the fabric, and forward survivors. Workers share
// the socket; each owns its sampling counter and its batch buffers.
func (co *coordinator) runWorker() {
	w := co.fab.NewWorker()
	br := transport.NewBatchReader(co.conn, transport.DefaultBatchSize)
	for {
		n, err := br.Read()
		if err != nil {
			return // socket closed: shutdown
		}
		for i := 0; i < n; i++ {
			payload, from := br.Message(i)
			co.handle(w, payload, from)
		}
	}
}

func (co *coordinator) handle(w *fabric.Worker, payload []byte, from *net.UDPAddr) {
	if len(payload) < 2 {
		return
	}
	switch ident := wire.Identifier(binary.BigEndian.Uint16(payload[0:2])); ident {
	case wire.IdentControl:
		co.handleControl(payload)
	case wire.IdentCompact:
		co.handleCompact(payload, from)
	case co.codec.Ident:
		pkt, err := co.codec.Decode(payload)
		if err != nil {
			return // not ours or truncated: drop silently
		}
		forward, toClient := w.ProcessPacket(pkt)
		if !forward {
			return
		}
		co.forward(pkt, toClient)
	}
}

func (co *coordinator) handleControl(payload []byte) {
	var ctrl wire.ControlCodec
	msg, err := ctrl.Decode(payload)
	if err != nil {
		return
	}
	switch msg.Type {
	case wire.CtrlResetReply:
		log.Printf("coordinator: reset acknowledged")
	case wire.CtrlHKReport:
		// An external hot-key report feeds the same counters the sampler
		// fills, so the next epoch weighs reported keys alongside
		// locally observed ones.
		for _, e := range msg.Entries {
			for n := uint16(0); n < e.Load; n++ {
				co.fab.Stats().RecordUkeyAccess(e.Keyhash, nil)
			}
		}
	}
}

func (co *coordinator) handleCompact(payload []byte, from *net.UDPAddr) {
	if co.netcache == nil {
		return
	}
	var codec wire.NetcacheCodec
	pkt, err := codec.Decode(payload)
	if err != nil {
		return
	}
	rep := co.netcache.Serve(pkt)
	if rep == nil {
		return
	}
	buf, err := codec.Encode(rep)
	if err != nil {
		return
	}
	if err := co.conn.SendTo(from, buf); err != nil {
		co.fab.RecordSendError()
	}
}

// forward rewrites the packet's destination per the fabric's decision
// and retransmits. Reads are served by the tail rack, writes enter at
// the head; replies go back to the client endpoint the header names
// (acks are consumed by the fabric and never reach forward). The sender's UDP source port rides along untouched inside the
// kernel's socket handling.
func (co *coordinator) forward(pkt *wire.Packet, toClient bool) {
	var dst *net.UDPAddr
	if toClient {
		id := int(pkt.Header.ClientID)
		if id >= len(co.clientAddrs) {
			return
		}
		dst = co.clientAddrs[id]
	} else {
		rack := co.rackFor(pkt.Header.Op)
		idx := int(pkt.Header.ServerID)
		if rack >= len(co.serverAddrs) || idx >= len(co.serverAddrs[rack]) {
			return
		}
		dst = co.serverAddrs[rack][idx]
	}

	buf, err := co.codec.Encode(pkt)
	if err != nil {
		co.fab.RecordSendError()
		return
	}
	if pkt.Header.Op == wire.OpDec && !toClient {
		// Load decay is fleet-wide: the same DEC lands on the named node
		// in every rack.
		for _, rack := range co.serverAddrs {
			idx := int(pkt.Header.ServerID)
			if idx < len(rack) {
				if err := co.conn.SendTo(rack[idx], buf); err != nil {
					log.Printf("coordinator: dec send: %v", err)
					co.fab.RecordSendError()
				}
			}
		}
		return
	}
	if err := co.conn.SendTo(dst, buf); err != nil {
		log.Printf("coordinator: send to %v: %v", dst, err)
		co.fab.RecordSendError()
	}
}

// rackFor picks which rack a server-bound packet enters: writes at the
// chain's head, reads and replica-management traffic at the tail where
// replicas live.
func (co *coordinator) rackFor(op wire.OpType) int {
	switch op {
	case wire.OpGet, wire.OpMgrReq:
		return len(co.serverAddrs) - 1
	default:
		return 0
	}
}

// runPromotionLoop is the control plane: every epoch, swap the hottest
// unreplicated keys in for the coldest replicated ones and seed each
// newly admitted key's home server.
func (co *coordinator) runPromotionLoop(epoch time.Duration, control *cluster.ControlSender, stop <-chan struct{}) {
	ticker := time.NewTicker(epoch)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		result := co.fab.RunPromotionEpoch(func(keyhash uint32) uint8 {
			return uint8(keyhash % uint32(co.topo.NumNodes()))
		})
		for _, added := range result.Added {
			if added.Key == nil {
				// No sampled access carried the key string this epoch;
				// the entry still serves reads from its home and is not
				// seeded by a later epoch while it stays in the R-set.
				continue
			}
			if err := control.SendReplicationSeed(added.Keyhash, added.Key, added.Home); err != nil {
				log.Printf("coordinator: replication seed %08x: %v", added.Keyhash, err)
				co.fab.RecordSendError()
			}
		}
	}
}
