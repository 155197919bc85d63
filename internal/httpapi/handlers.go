package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"cod-order-service/internal/intake"
	"cod-order-service/internal/modal"
)

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	out := s.orders.Submit(r.Context(), r)
	s.respond(w, r, out)
}

type trackResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
}

func (s *server) handleAbandonedCart(w http.ResponseWriter, r *http.Request) {
	a, err := intake.ParseAbandonment(r)
	if err != nil {
		if ie, ok := intake.AsError(err); ok {
			writeJSON(w, http.StatusBadRequest, failure{Error: ie.Reason, Code: ie.Code})
			return
		}
		writeJSON(w, http.StatusBadRequest, failure{Error: "invalid request"})
		return
	}
	rec, err := s.orders.RecordAbandonment(r.Context(), a)
	if err != nil {
		s.log.Error("recording abandoned cart failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("shop", a.Shop),
			zap.String("session_id", a.SessionID),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, failure{Error: "could not record cart"})
		return
	}
	writeJSON(w, http.StatusOK, trackResponse{Success: true, ID: rec.ID})
}

type wilayasResponse struct {
	Wilayas []modal.WilayaSummary `json:"wilayas"`
}

type communesResponse struct {
	Wilaya   string           `json:"wilaya"`
	Communes []modal.Location `json:"communes"`
}

func (s *server) handleLocations(w http.ResponseWriter, r *http.Request) {
	if code := strings.TrimSpace(r.URL.Query().Get("wilaya")); code != "" {
		if len(code) == 1 {
			code = "0" + code
		}
		communes, err := s.locations.ListCommunes(r.Context(), code)
		if err != nil {
			s.internalError(w, r, "listing communes failed", err)
			return
		}
		if communes == nil {
			communes = []modal.Location{}
		}
		writeJSON(w, http.StatusOK, communesResponse{Wilaya: code, Communes: communes})
		return
	}

	wilayas, err := s.locations.ListWilayas(r.Context())
	if err != nil {
		s.internalError(w, r, "listing wilayas failed", err)
		return
	}
	if wilayas == nil {
		wilayas = []modal.WilayaSummary{}
	}
	writeJSON(w, http.StatusOK, wilayasResponse{Wilayas: wilayas})
}

type healthResponse struct {
	Status string            `json:"status"`
	Mode   string            `json:"mode"`
	Checks map[string]string `json:"checks"`
}

// handleHealth always answers 200: the service keeps taking orders in
// memory mode, so a failed dependency only degrades it.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy", Mode: s.mode, Checks: make(map[string]string, len(s.checks))}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.log.Error(msg, zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, failure{Error: "internal_error", RequestID: RequestID(r.Context())})
}
