package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/coordinator"
	"github.com/DoyleJ11/martillo-live/internal/engine"
	"github.com/DoyleJ11/martillo-live/internal/identity"
	"github.com/DoyleJ11/martillo-live/internal/orchestrator"
	"github.com/DoyleJ11/martillo-live/internal/types"
	wire "github.com/DoyleJ11/martillo-live/pkg/types"
)

type StateResponse struct {
	AuctionID   string        `json:"auctionId"`
	RunState    string        `json:"runState"`
	ActiveLotID string        `json:"activeLotId,omitempty"`
	Lot         *wire.LotView `json:"lot,omitempty"`
	Presence    int           `json:"presenceCount"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// AuctionState serves the same snapshot a client gets on join, for clients
// that resync over plain HTTP.
func AuctionState(co *coordinator.Coordinator, orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := orch.State(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		resp := StateResponse{
			AuctionID: st.AuctionID,
			RunState:  string(st.RunState),
			Presence:  co.Presence(st.AuctionID),
		}
		if st.ActiveLot != nil {
			v := types.LotView(*st.ActiveLot)
			resp.ActiveLotID = v.ID
			resp.Lot = &v
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// SyncAuction reseeds shared state from the repository. Operators only.
func SyncAuction(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !identity.FromRequest(r).IsOperator() {
			writeErr(w, engine.ErrUnauthorized)
			return
		}
		if err := orch.Sync(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// MockCheckout is where mock payment links point in development.
func MockCheckout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}{Reference: chi.URLParam(r, "ref"), Status: "mock"})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	reason, ok := engine.ReasonOf(err)
	status := http.StatusServiceUnavailable
	switch {
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrCommandInProgress):
		status = http.StatusConflict
	case ok:
		status = http.StatusUnprocessableEntity
	}
	msg := engine.ErrUnavailable.Error()
	if ok {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg, Reason: string(reason)})
}

// requestLogger logs one line per request. Websocket upgrades log when the
// connection ends.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
