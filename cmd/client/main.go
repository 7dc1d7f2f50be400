// cmd/client is the fabric's CLI, built with Cobra. It speaks the wire
// protocol to the coordinator for data operations and plain HTTP to the
// admin surface for introspection.
//
// Usage:
//
//	fabcli put mykey "hello world"   --config topology.conf
//	fabcli get mykey                 --config topology.conf
//	fabcli del mykey                 --config topology.conf
//	fabcli rset                      --admin http://localhost:8080
//	fabcli reset                     --admin http://localhost:8080
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kvfabric/fabric/internal/client"
	"github.com/kvfabric/fabric/internal/config"
)

var (
	configPath string
	adminURL   string
	clientID   uint8
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "fabcli",
		Short: "CLI client for the replication fabric",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Topology file (required for get/put/del)")
	root.PersistentFlags().StringVar(&adminURL, "admin", "http://localhost:8080",
		"Coordinator admin HTTP address")
	root.PersistentFlags().Uint8Var(&clientID, "client-id", 0,
		"This endpoint's position in the topology's client list")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Second,
		"Per-attempt request timeout")

	root.AddCommand(getCmd(), putCmd(), delCmd(), rsetCmd(), statsCmd(), nodesCmd(), resetCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// dial loads the topology and opens a wire-protocol client bound at
// this endpoint's configured address.
func dial() (*client.Client, error) {
	if configPath == "" {
		return nil, errors.New("--config is required for data operations")
	}
	topo, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	router, err := topo.Router.UDPAddr()
	if err != nil {
		return nil, err
	}
	var local *net.UDPAddr
	if int(clientID) < len(topo.Clients) {
		local, err = topo.Clients[clientID].UDPAddr()
		if err != nil {
			return nil, err
		}
	}
	return client.New(router, local, clientID, topo.NumNodes(), timeout)
}

// ─── data operations ──────────────────────────────────────────────────────────

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a value by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Get(args[0])
			if errors.Is(err, client.ErrNotFound) {
				fmt.Printf("key %q not found\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			prettyPrint(map[string]any{
				"key":     args[0],
				"value":   string(res.Value),
				"version": res.Version,
			})
			return nil
		},
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a key-value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Put(args[0], args[1])
			if err != nil {
				return err
			}
			prettyPrint(map[string]any{"key": args[0], "version": res.Version})
			return nil
		},
	}
}

func delCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Del(args[0])
			if err != nil {
				return err
			}
			prettyPrint(map[string]any{"deleted": args[0], "version": res.Version})
			return nil
		},
	}
}

// ─── admin operations ─────────────────────────────────────────────────────────

func adminGet(path string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a := client.NewAdmin(adminURL, timeout)
		body, err := a.Get(context.Background(), path)
		if err != nil {
			return err
		}
		fmt.Println(body)
		return nil
	}
}

func rsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rset",
		Short: "Dump the coordinator's replica-set table",
		RunE:  adminGet("/rset"),
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show coordinator counters",
		RunE:  adminGet("/stats"),
	}
}

func nodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List the deployment's nodes",
		RunE:  adminGet("/cluster/nodes"),
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Wipe every server's store",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := client.NewAdmin(adminURL, timeout)
			body, err := a.Reset(context.Background())
			if err != nil {
				return err
			}
			fmt.Println(body)
			return nil
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
