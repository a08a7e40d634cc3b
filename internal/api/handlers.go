package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pickbatch/internal/buildinfo"
	"pickbatch/internal/controller"
	"pickbatch/internal/opt"
	"pickbatch/internal/routing"
	"pickbatch/internal/warehouse"
)

// OrdersHandler handles POST /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	s.intake(w, r, false)
}

// LastOrderHandler handles POST /v1/orders/last
func (s *Server) LastOrderHandler(w http.ResponseWriter, r *http.Request) {
	s.intake(w, r, true)
}

func (s *Server) intake(w http.ResponseWriter, r *http.Request, last bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Limiter != nil && !s.Limiter.Allow() {
		writeProblem(w, http.StatusTooManyRequests, "Too many orders", "order intake rate exceeded", r.URL.Path)
		return
	}
	var in orderIn
	if err := decodeJSON(w, r, &in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	o, err := validateOrder(in)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid order", err.Error(), r.URL.Path)
		return
	}
	if s.Catalog != nil {
		if o, err = s.Catalog.Enrich(o); err != nil {
			writeProblem(w, http.StatusUnprocessableEntity, "Unknown item", err.Error(), r.URL.Path)
			return
		}
	}
	// ArrivedAt stays zero: the controller stamps it with its own clock.
	submit := s.Ctrl.Submit
	if last {
		submit = s.Ctrl.Finish
	}
	if err := submit(r.Context(), o); err != nil {
		status, title := submitStatus(err)
		writeProblem(w, status, title, err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"orderId": o.ID,
		"items":   o.Size(),
		"last":    last,
	})
}

func submitStatus(err error) (int, string) {
	var ge *routing.GeometryError
	switch {
	case errors.As(err, &ge), errors.Is(err, warehouse.ErrUnknownItem):
		return http.StatusUnprocessableEntity, "Invalid item position"
	case errors.Is(err, controller.ErrDuplicateOrder):
		return http.StatusConflict, "Duplicate order"
	case errors.Is(err, controller.ErrFinished):
		return http.StatusConflict, "Order stream finished"
	case errors.Is(err, controller.ErrStopped):
		return http.StatusServiceUnavailable, "Batching stopped"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Request cancelled"
	}
	return http.StatusInternalServerError, "Submit failed"
}

// PlanHandler handles GET /v1/plan
func (s *Server) PlanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snap, err := s.Ctrl.Snapshot(r.Context())
	if err != nil {
		status, title := submitStatus(err)
		writeProblem(w, status, title, err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PickerAvailableHandler handles POST /v1/picker/available
func (s *Server) PickerAvailableHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.Ctrl.PickerAvailable()
	w.WriteHeader(http.StatusNoContent)
}

// ILSMetricsHandler handles GET /v1/admin/ils-metrics
func (s *Server) ILSMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, opt.GetMetrics())
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		buildinfo.Info
	}{"ok", buildinfo.Get()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check Redis connectivity when the release stream runs over Redis
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := s.Stream.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
