// cmd/server is one back-end node of the fabric: it answers
// coordinator-routed GET/PUT/DEL traffic out of its in-memory store,
// forwards writes down the inter-rack chain, and runs the rack-local
// replication protocol for keys the coordinator promotes.
//
// Example — node 0 of rack 0:
//
//	./server --config topology.conf --rack 0 --node 0
//
// The node's UDP bind address comes from its topology entry; --admin
// optionally adds an HTTP endpoint for health and store introspection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kvfabric/fabric/internal/api"
	"github.com/kvfabric/fabric/internal/cluster"
	"github.com/kvfabric/fabric/internal/config"
	"github.com/kvfabric/fabric/internal/server"
	"github.com/kvfabric/fabric/internal/store"
	"github.com/kvfabric/fabric/internal/transport"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "Topology file (required)")
	rack := flag.Int("rack", 0, "This node's rack index")
	index := flag.Int("node", 0, "This node's index within its rack")
	workers := flag.Int("workers", 2, "Request-processing goroutines")
	adminAddr := flag.String("admin", "", "Admin HTTP listen address (empty disables)")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("FATAL: --config is required")
	}

	// ── Topology ───────────────────────────────────────────────────────────
	topo, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	if *rack < 0 || *rack >= topo.NumRacks() {
		log.Fatalf("FATAL: rack %d out of range [0,%d)", *rack, topo.NumRacks())
	}
	if *index < 0 || *index >= topo.NumNodes() {
		log.Fatalf("FATAL: node %d out of range [0,%d)", *index, topo.NumNodes())
	}
	nodeID := fmt.Sprintf("rack%d-node%d", *rack, *index)

	laddr, err := topo.Racks[*rack].Nodes[*index].UDPAddr()
	if err != nil {
		log.Fatalf("FATAL: resolve node address: %v", err)
	}
	router, err := topo.Router.UDPAddr()
	if err != nil {
		log.Fatalf("FATAL: resolve router address: %v", err)
	}

	conn, err := transport.Listen(laddr)
	if err != nil {
		log.Fatalf("FATAL: listen %v: %v", laddr, err)
	}
	defer conn.Close()

	membership := cluster.NewMembership(topo, 150)
	srv := server.New(*rack, *index, store.New(nodeID), membership, conn, router)

	// ── Request workers ────────────────────────────────────────────────────
	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				payload, from, release, err := conn.Recv()
				if err != nil {
					return // socket closed: shutdown
				}
				srv.HandlePacket(payload, from)
				release()
			}
		}()
	}
	log.Printf("server %s: listening on %v (%d workers)", nodeID, laddr, *workers)

	// ── Optional admin HTTP server ─────────────────────────────────────────
	var admin *http.Server
	if *adminAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		engine := gin.New()
		engine.Use(api.Logger(), api.Recovery())
		api.NewServerHandler(srv, nodeID).Register(engine)

		admin = &http.Server{
			Addr:         *adminAddr,
			Handler:      engine,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("server %s: admin on %s", nodeID, *adminAddr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("admin server error: %v", err)
			}
		}()
	}

	// ── Graceful shutdown ──────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("server %s: shutting down", nodeID)
	conn.Close()
	if admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := admin.Shutdown(ctx); err != nil {
			log.Printf("admin shutdown error: %v", err)
		}
	}
	wg.Wait()
}
