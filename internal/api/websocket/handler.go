package websocket

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/kubilitics/kubilitics-topoview/internal/engine"
	"github.com/kubilitics/kubilitics-topoview/internal/repository"
	"github.com/kubilitics/kubilitics-topoview/internal/service"
	"github.com/kubilitics/kubilitics-topoview/internal/topology"
)

// Config tunes client connections.
type Config struct {
	// AllowedOrigins lists accepted Origin headers; "*" accepts any.
	AllowedOrigins []string
	// InputRate limits client input events per second; 0 disables the limit.
	InputRate  float64
	InputBurst int
	Engine     engine.Options
	Logger     *slog.Logger
}

// Handler upgrades /ws/views/{view} requests and runs one session per client.
type Handler struct {
	hub      *Hub
	datasets service.DatasetService
	layouts  repository.LayoutRepository
	cfg      Config
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, datasets service.DatasetService, layouts repository.LayoutRepository, cfg Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	h := &Handler{hub: hub, datasets: datasets, layouts: layouts, cfg: cfg, log: log}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, "*") || slices.Contains(h.cfg.AllowedOrigins, origin)
}

// ServeWS handles websocket requests from clients
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	view := mux.Vars(r)["view"]
	if !slices.Contains(topology.Views(), view) {
		http.Error(w, "unknown view", http.StatusNotFound)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	var limiter *rate.Limiter
	if h.cfg.InputRate > 0 {
		burst := h.cfg.InputBurst
		if burst <= 0 {
			burst = int(h.cfg.InputRate)
		}
		limiter = rate.NewLimiter(rate.Limit(h.cfg.InputRate), max(burst, 1))
	}
	clientID := uuid.New().String()
	client := NewClient(h.hub.ctx, h.hub, conn, clientID, limiter, h.log)

	opts := h.cfg.Engine
	opts.Logger = client.log
	namespace := r.URL.Query().Get("namespace")
	session, err := service.NewSession(view, namespace, h.datasets, h.layouts, opts, client.Send)
	if err != nil {
		client.Close()
		conn.Close()
		return
	}
	client.session = session

	select {
	case h.hub.register <- client:
	case <-h.hub.ctx.Done():
		client.Close()
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
	go func() {
		if err := session.Run(client.ctx); err != nil {
			client.log.Error("session failed", "error", err)
		}
		client.Close()
	}()
	client.log.Info("websocket client connected", "view", view, "namespace", namespace)
}
