// cmd/decrementor is the fabric's load-decay driver: a periodic emitter
// that sends one pre-encoded DEC packet per even-numbered node through
// the coordinator, so server load counters track recent load instead of
// growing forever.
//
// Example:
//
//	./decrementor --config topology.conf --interval 100ms --amount 10
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kvfabric/fabric/internal/config"
	"github.com/kvfabric/fabric/internal/transport"
	"github.com/kvfabric/fabric/internal/wire"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "Topology file (required)")
	interval := flag.Duration("interval", 100*time.Millisecond, "Time between decrement rounds")
	amount := flag.Uint("amount", 10, "Load units drained per packet")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("FATAL: --config is required")
	}
	if *amount > 0xFFFF {
		log.Fatalf("FATAL: --amount %d exceeds the wire field's 16-bit range", *amount)
	}

	topo, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	router, err := topo.Router.UDPAddr()
	if err != nil {
		log.Fatalf("FATAL: resolve router address: %v", err)
	}
	conn, err := transport.Dial(router)
	if err != nil {
		log.Fatalf("FATAL: dial coordinator: %v", err)
	}
	defer conn.Close()

	// The destination node id is baked into each packet's server_id and
	// never changes, so the whole round is encoded once and the same
	// buffers are resent forever.
	codec := wire.LongCodec{Ident: wire.IdentLong}
	var packets [][]byte
	for id := 0; id < topo.NumNodes(); id += 2 {
		buf, err := codec.Encode(&wire.Packet{
			Header: wire.Header{
				Identifier: wire.IdentLong,
				Op:         wire.OpDec,
				ServerID:   uint8(id),
				Load:       uint16(*amount),
			},
		})
		if err != nil {
			log.Fatalf("FATAL: encode DEC for node %d: %v", id, err)
		}
		packets = append(packets, buf)
	}
	log.Printf("decrementor: %d packets per round, every %v, via %v", len(packets), *interval, router)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-quit:
			log.Print("decrementor: shutting down")
			return
		case <-ticker.C:
			for _, buf := range packets {
				if err := conn.Send(buf); err != nil {
					log.Printf("decrementor: send: %v", err)
				}
			}
		}
	}
}
