package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/yaml"

	"github.com/kubilitics/kubilitics-topoview/internal/engine"
	"github.com/kubilitics/kubilitics-topoview/internal/models"
	"github.com/kubilitics/kubilitics-topoview/internal/pkg/logger"
	"github.com/kubilitics/kubilitics-topoview/internal/repository"
	"github.com/kubilitics/kubilitics-topoview/internal/service"
	"github.com/kubilitics/kubilitics-topoview/internal/topology"
)

const maxSnapshotTicks = 3000

// Handler manages HTTP request handlers
type Handler struct {
	datasets service.DatasetService
	layouts  repository.LayoutRepository
	opts     engine.Options
}

// NewHandler creates a new HTTP handler. layouts may be nil, which disables
// the layout routes.
func NewHandler(datasets service.DatasetService, layouts repository.LayoutRepository, opts engine.Options) *Handler {
	return &Handler{datasets: datasets, layouts: layouts, opts: opts}
}

// SetupRoutes configures API routes on the /api/v1 subrouter.
func SetupRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/dataset", h.GetDataset).Methods("GET")
	router.HandleFunc("/dataset", h.PutDataset).Methods("PUT")

	router.HandleFunc("/views", h.ListViews).Methods("GET")
	router.HandleFunc("/views/{view}/frame", h.GetFrame).Methods("GET")
	router.HandleFunc("/views/{view}/layout", h.GetLayout).Methods("GET")
	router.HandleFunc("/views/{view}/layout", h.PutLayout).Methods("PUT")
	router.HandleFunc("/views/{view}/layout", h.DeleteLayout).Methods("DELETE")
}

// SetupHealthRoutes registers /health and /metrics on the root router.
func SetupHealthRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/healthz/live", h.Health).Methods("GET")
	router.HandleFunc("/healthz/ready", h.Ready).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /healthz/ready: ready once a dataset has been published.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	_, gen, err := h.datasets.Dataset(r.Context(), "")
	if err != nil {
		respondErrorWithCode(w, http.StatusServiceUnavailable, ErrCodeNotReady, err.Error(), logger.FromContext(r.Context()))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready", "generation": gen})
}

// GetDataset handles GET /dataset?namespace=
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	requestID := logger.FromContext(r.Context())
	ds, gen, err := h.datasets.Dataset(r.Context(), r.URL.Query().Get("namespace"))
	if err != nil {
		h.respondServiceError(w, err, requestID)
		return
	}
	w.Header().Set("X-Dataset-Generation", strconv.FormatUint(gen, 10))
	respondJSON(w, http.StatusOK, ds)
}

// PutDataset handles PUT /dataset. The body is JSON or YAML.
func (h *Handler) PutDataset(w http.ResponseWriter, r *http.Request) {
	requestID := logger.FromContext(r.Context())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondErrorWithCode(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "dataset too large", requestID)
			return
		}
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest, "failed to read body", requestID)
		return
	}
	ds, err := DecodeDataset(body)
	if err != nil {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), requestID)
		return
	}
	if details := ValidateDataset(ds); len(details) > 0 {
		respondStructuredError(w, http.StatusUnprocessableEntity, ErrCodeValidationFailed, "invalid dataset", requestID, details)
		return
	}
	gen := h.datasets.Publish(r.Context(), ds)
	respondJSON(w, http.StatusOK, map[string]any{"generation": gen, "pods": len(ds.Pods)})
}

// DecodeDataset parses a JSON or YAML dataset document. Unknown fields are
// rejected.
func DecodeDataset(body []byte) (*models.Dataset, error) {
	var ds models.Dataset
	if err := yaml.UnmarshalStrict(body, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &ds, nil
}

// ValidateDataset reports duplicate identities and references to pods that
// the dataset does not contain.
func ValidateDataset(ds *models.Dataset) map[string]string {
	details := map[string]string{}
	pods := map[string]bool{}
	for _, p := range ds.Pods {
		if p.Name == "" {
			details["pods"] = "pod without name"
			continue
		}
		if pods[p.Ref().Key()] {
			details["pods"] = "duplicate pod " + p.Ref().Key()
		}
		pods[p.Ref().Key()] = true
	}
	checkTargets := func(field, owner string, targets []models.ObjectRef) {
		for _, t := range targets {
			if !pods[t.Key()] {
				details[field] = fmt.Sprintf("%s targets unknown pod %s", owner, t.Key())
			}
		}
	}
	for _, s := range ds.Services {
		checkTargets("services", s.Ref().Key(), s.TargetPods)
	}
	for field, cs := range map[string][]models.Controller{
		"replicaSets":  ds.ReplicaSets,
		"statefulSets": ds.StatefulSets,
		"daemonSets":   ds.DaemonSets,
	} {
		for _, c := range cs {
			checkTargets(field, c.Ref().Key(), c.TargetPods)
		}
	}
	replicaSets := map[string]bool{}
	for _, rs := range ds.ReplicaSets {
		replicaSets[rs.Ref().Key()] = true
	}
	for _, d := range ds.Deployments {
		for _, rs := range d.TargetReplicaSets {
			if !replicaSets[rs.Key()] {
				details["deployments"] = fmt.Sprintf("%s targets unknown replica set %s", d.Ref().Key(), rs.Key())
			}
		}
	}
	for _, route := range ds.AllowedRoutes {
		if !pods[route.SourcePod.Key()] || !pods[route.TargetPod.Key()] {
			details["allowedRoutes"] = fmt.Sprintf("route %s -> %s has an unknown end", route.SourcePod.Key(), route.TargetPod.Key())
		}
	}
	return details
}

// LayerInfo describes one layer of a view.
type LayerInfo struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
}

// ViewInfo describes one view.
type ViewInfo struct {
	Name       string      `json:"name"`
	ItemLayers []LayerInfo `json:"itemLayers"`
	LinkLayers []LayerInfo `json:"linkLayers"`
}

// ListViews handles GET /views
func (h *Handler) ListViews(w http.ResponseWriter, _ *http.Request) {
	var views []ViewInfo
	for _, name := range topology.Views() {
		v, err := topology.NewVariant(name)
		if err != nil {
			continue
		}
		info := ViewInfo{Name: name, ItemLayers: []LayerInfo{}, LinkLayers: []LayerInfo{}}
		for _, l := range v.ItemLayers() {
			info.ItemLayers = append(info.ItemLayers, LayerInfo{Name: l.Name, Label: l.Label})
		}
		for _, l := range v.LinkLayers() {
			info.LinkLayers = append(info.LinkLayers, LayerInfo{Name: l.Name})
		}
		views = append(views, info)
	}
	respondJSON(w, http.StatusOK, views)
}

// GetFrame handles GET /views/{view}/frame?namespace=&ticks=
func (h *Handler) GetFrame(w http.ResponseWriter, r *http.Request) {
	requestID := logger.FromContext(r.Context())
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	ticks := 0
	if raw := r.URL.Query().Get("ticks"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxSnapshotTicks {
			respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest,
				fmt.Sprintf("ticks must be an integer in [0, %d]", maxSnapshotTicks), requestID)
			return
		}
		ticks = n
	}
	fr, err := service.RenderSnapshot(r.Context(), h.datasets, h.layouts, view, r.URL.Query().Get("namespace"), ticks, h.opts)
	if err != nil {
		h.respondServiceError(w, err, requestID)
		return
	}
	respondJSON(w, http.StatusOK, fr)
}

// GetLayout handles GET /views/{view}/layout
func (h *Handler) GetLayout(w http.ResponseWriter, r *http.Request) {
	view, ok := h.layoutView(w, r)
	if !ok {
		return
	}
	layout, err := h.layouts.GetLayout(r.Context(), view)
	if errors.Is(err, repository.ErrNotFound) {
		respondJSON(w, http.StatusOK, models.Layout{View: view, Pins: []models.Pin{}})
		return
	}
	if err != nil {
		h.respondServiceError(w, err, logger.FromContext(r.Context()))
		return
	}
	respondJSON(w, http.StatusOK, layout)
}

// PutLayout handles PUT /views/{view}/layout. It replaces every pin.
func (h *Handler) PutLayout(w http.ResponseWriter, r *http.Request) {
	requestID := logger.FromContext(r.Context())
	view, ok := h.layoutView(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest, "failed to read body", requestID)
		return
	}
	var layout models.Layout
	if err := yaml.UnmarshalStrict(body, &layout); err != nil {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid layout: "+err.Error(), requestID)
		return
	}
	if details := validatePins(view, layout.Pins); len(details) > 0 {
		respondStructuredError(w, http.StatusUnprocessableEntity, ErrCodeValidationFailed, "invalid layout", requestID, details)
		return
	}
	layout.View = view
	layout.UpdatedAt = time.Now().UTC()
	if err := h.layouts.SaveLayout(r.Context(), &layout); err != nil {
		h.respondServiceError(w, err, requestID)
		return
	}
	respondJSON(w, http.StatusOK, layout)
}

// DeleteLayout handles DELETE /views/{view}/layout
func (h *Handler) DeleteLayout(w http.ResponseWriter, r *http.Request) {
	view, ok := h.layoutView(w, r)
	if !ok {
		return
	}
	if err := h.layouts.DeleteLayout(r.Context(), view); err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.respondServiceError(w, err, logger.FromContext(r.Context()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validatePins(view string, pins []models.Pin) map[string]string {
	v, err := topology.NewVariant(view)
	if err != nil {
		return map[string]string{"view": err.Error()}
	}
	var layers []string
	for _, l := range v.ItemLayers() {
		layers = append(layers, l.Name)
	}
	details := map[string]string{}
	for i, p := range pins {
		key := fmt.Sprintf("pins[%d]", i)
		switch {
		case p.ID == "":
			details[key] = "id is required"
		case !slices.Contains(layers, p.Layer):
			details[key] = fmt.Sprintf("layer %q is not an item layer of %s", p.Layer, view)
		case math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0):
			details[key] = "coordinates must be finite"
		}
	}
	return details
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) (string, bool) {
	view := mux.Vars(r)["view"]
	if !slices.Contains(topology.Views(), view) {
		respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("unknown view %q", view), logger.FromContext(r.Context()))
		return "", false
	}
	return view, true
}

func (h *Handler) layoutView(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.layouts == nil {
		respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound, "layout storage is disabled", logger.FromContext(r.Context()))
		return "", false
	}
	return h.view(w, r)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, requestID string) {
	switch {
	case errors.Is(err, service.ErrNoDataset):
		respondErrorWithCode(w, http.StatusServiceUnavailable, ErrCodeNotReady, err.Error(), requestID)
	case errors.Is(err, repository.ErrNotFound):
		respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), requestID)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondErrorWithCode(w, http.StatusGatewayTimeout, ErrCodeInternalError, err.Error(), requestID)
	default:
		respondErrorWithCode(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error(), requestID)
	}
}
