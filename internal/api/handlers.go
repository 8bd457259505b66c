package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"azuro-bet/internal/bet"
	"azuro-bet/internal/config"
	"azuro-bet/internal/engine"
	"azuro-bet/internal/risk"
	"azuro-bet/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 * 1024

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	svc      Service
	cfg      config.APIConfig
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc Service, cfg config.APIConfig, hub *Hub, logger *slog.Logger) *Handlers {
	h := &Handlers{
		svc:    svc,
		cfg:    cfg,
		hub:    hub,
		logger: logger.With("component", "api-handlers"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r.Header.Get("Origin"), h.cfg, r.Host)
		},
	}
	return h
}

// isOriginAllowed decides whether a WebSocket handshake from origin may
// proceed. Without an allowlist only local and same-host origins pass; with
// one, only exact matches do. Non-browser clients send no origin.
func isOriginAllowed(origin string, cfg config.APIConfig, reqHost string) bool {
	if origin == "" {
		return true
	}
	if len(cfg.AllowedOrigins) > 0 {
		return slices.Contains(cfg.AllowedOrigins, origin)
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	if u.Host == reqHost {
		return true
	}
	reqName, _, err := net.SplitHostPort(reqHost)
	if err != nil {
		reqName = reqHost
	}
	return u.Port() == "" && u.Hostname() == reqName
}

// HandleHealth returns a simple health check response
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStatus returns the current service state
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, BuildSnapshot(h.svc))
}

// HandleChain returns the connected chain, or 404 when it is not supported.
func (h *Handlers) HandleChain(w http.ResponseWriter, r *http.Request) {
	meta := h.svc.Chain()
	if meta == nil {
		h.writeError(w, fmt.Errorf("%w: %d", bet.ErrUnsupportedChain, h.svc.Account().ChainID))
		return
	}
	h.writeJSON(w, http.StatusOK, NewChainInfo(*meta))
}

// HandleQuote prices a bet without sending anything.
func (h *Handlers) HandleQuote(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decode(w, r)
	if !ok {
		return
	}
	req, err := body.toRequest()
	if err != nil {
		h.writeError(w, err)
		return
	}
	q, err := h.svc.Quote(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, q)
}

// HandleSubmit runs one submit step: the approval when the allowance is
// short, otherwise the bet.
func (h *Handlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decode(w, r)
	if !ok {
		return
	}
	req, err := body.toRequest()
	if err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		h.writeErrorBody(w, err, ErrorResponse{Bet: res.Bet, TxURL: res.TxURL})
		return
	}
	status := http.StatusCreated
	if res.Stage == engine.StageApproved {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, res)
}

// HandleListBets returns the ledger, newest first.
func (h *Handlers) HandleListBets(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.Bets()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

// HandleGetBet returns one ledger record.
func (h *Handlers) HandleGetBet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Bet(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// HandleWebSocket upgrades the connection and creates a new WebSocket client
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn)

	// Send initial snapshot to the client
	evt := Event{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Data:      BuildSnapshot(h.svc),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal initial snapshot", "error", err)
		return
	}

	select {
	case client.send <- data:
	default:
		h.logger.Warn("failed to send initial snapshot to client")
	}
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request) (BetRequestBody, bool) {
	var body BetRequestBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return body, false
	}
	return body, true
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	h.writeErrorBody(w, err, ErrorResponse{})
}

func (h *Handlers) writeErrorBody(w http.ResponseWriter, err error, body ErrorResponse) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	}
	body.Error = err.Error()
	h.writeJSON(w, status, body)
}

// statusFor maps workflow errors to HTTP status codes. Anything not
// recognized came from the node or the odds API.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, bet.ErrNoSelections),
		errors.Is(err, bet.ErrInvalidAmount),
		errors.Is(err, bet.ErrInvalidSlippage),
		errors.Is(err, bet.ErrInvalidSelection),
		errors.Is(err, risk.ErrLimit):
		return http.StatusBadRequest
	case errors.Is(err, bet.ErrUnsupportedChain),
		errors.Is(err, engine.ErrNotFound),
		errors.Is(err, store.ErrInvalidID):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
