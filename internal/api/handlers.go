// Package api is the fabric's admin and observability surface: a small
// HTTP API, off the packet path, for inspecting a coordinator's R-set
// and access statistics, dumping the loaded topology, and resetting the
// server fleet between test scenarios. It never carries key-value
// traffic — that is the UDP data plane's job.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kvfabric/fabric/internal/cluster"
	"github.com/kvfabric/fabric/internal/config"
	"github.com/kvfabric/fabric/internal/fabric"
	"github.com/kvfabric/fabric/internal/server"
)

// Handler serves a coordinator replica's admin endpoints.
type Handler struct {
	fabric  *fabric.Fabric
	members *cluster.Membership
	topo    *config.Topology
	control *cluster.ControlSender
	replica string
}

// NewHandler creates a coordinator admin Handler.
func NewHandler(f *fabric.Fabric, m *cluster.Membership, topo *config.Topology, cs *cluster.ControlSender, replicaID string) *Handler {
	return &Handler{fabric: f, members: m, topo: topo, control: cs, replica: replicaID}
}

// Register mounts all coordinator routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/rset", h.RSet)
	r.GET("/stats", h.Stats)
	r.GET("/config", h.Config)

	clusterGroup := r.Group("/cluster")
	clusterGroup.GET("/nodes", h.ListNodes)
	clusterGroup.POST("/reset", h.Reset)
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"replica": h.replica,
		"status":  "ok",
		"racks":   h.topo.NumRacks(),
		"nodes":   h.topo.NumNodes(),
	})
}

// rsetEntry is the JSON shape of one replica-set entry.
type rsetEntry struct {
	Keyhash      uint32  `json:"keyhash"`
	VerCompleted uint32  `json:"ver_completed"`
	Size         int     `json:"size"`
	Replicas     []uint8 `json:"replicas"`
	Bitmap       uint32  `json:"bitmap"`
}

// RSet handles GET /rset: a point-in-time snapshot of every replicated
// key's membership state.
func (h *Handler) RSet(c *gin.Context) {
	entries := make([]rsetEntry, 0, h.fabric.RSet().Len())
	h.fabric.RSet().Range(func(keyhash uint32, data *fabric.RSetData) bool {
		entries = append(entries, rsetEntry{
			Keyhash:      keyhash,
			VerCompleted: data.VerCompleted(),
			Size:         data.Size(),
			Replicas:     data.Replicas(),
			Bitmap:       data.Bitmap(),
		})
		return true
	})
	c.JSON(http.StatusOK, gin.H{"size": len(entries), "entries": entries})
}

// Stats handles GET /stats: the write-version counter, the hot-key set
// size, and the cumulative send-error count.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":     h.fabric.Version(),
		"rset_size":   h.fabric.RSet().Len(),
		"hot_ukeys":   h.fabric.Stats().HotUkeyCount(),
		"send_errors": h.fabric.SendErrors(),
	})
}

// Config handles GET /config: the parsed topology, echoed back so an
// operator can confirm what this replica actually loaded.
func (h *Handler) Config(c *gin.Context) {
	racks := make([]gin.H, 0, len(h.topo.Racks))
	for _, rack := range h.topo.Racks {
		nodes := make([]string, len(rack.Nodes))
		for i, n := range rack.Nodes {
			nodes[i] = n.String()
		}
		racks = append(racks, gin.H{"nodes": nodes, "controller": rack.Controller.String()})
	}
	clients := make([]string, len(h.topo.Clients))
	for i, cl := range h.topo.Clients {
		clients[i] = cl.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"router":  h.topo.Router.String(),
		"racks":   racks,
		"clients": clients,
	})
}

// ListNodes handles GET /cluster/nodes.
func (h *Handler) ListNodes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"nodes": h.members.All()})
}

// Reset handles POST /cluster/reset: broadcast RESET_REQ to every node.
// Replies drain asynchronously on the coordinator's data socket; the
// response reports only how many requests went out.
func (h *Handler) Reset(c *gin.Context) {
	sent, err := h.control.BroadcastReset()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "sent": sent})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

// ServerHandler serves a back-end node's admin endpoints.
type ServerHandler struct {
	srv    *server.Server
	nodeID string
}

// NewServerHandler creates a node admin handler.
func NewServerHandler(s *server.Server, nodeID string) *ServerHandler {
	return &ServerHandler{srv: s, nodeID: nodeID}
}

// Register mounts all node routes on r.
func (h *ServerHandler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/store", h.StoreStats)
	r.GET("/store/keys", h.Keys)
}

// Health handles GET /health.
func (h *ServerHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"node":   h.nodeID,
		"status": "ok",
		"load":   h.srv.Load(),
	})
}

// StoreStats handles GET /store.
func (h *ServerHandler) StoreStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"keys":        h.srv.Store().Len(),
		"send_errors": h.srv.SendErrors(),
	})
}

// Keys handles GET /store/keys.
func (h *ServerHandler) Keys(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"keys": h.srv.Store().Keys()})
}
