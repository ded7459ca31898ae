package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": Version,
		"service": "binance-grid-bot",
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"version": Version})
}

// symbolStatus is the JSON shape returned for one running worker.
type symbolStatus struct {
	Symbol     string  `json:"symbol"`
	State      string  `json:"state"`
	HaltReason string  `json:"halt_reason,omitempty"`
	TradeCount int     `json:"trade_count"`
	Position   any     `json:"position"`
	Equity     float64 `json:"-"`
}

// handleListSymbols returns every actively managed symbol's status.
func (s *Server) handleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols := s.sup.ActiveSymbols()
	out := make([]symbolStatus, 0, len(symbols))
	for _, symbol := range symbols {
		if st, ok := s.symbolStatus(symbol); ok {
			out = append(out, st)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"symbols": out})
}

// handleSymbolStatus returns one symbol's current engine status.
func (s *Server) handleSymbolStatus(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	st, ok := s.symbolStatus(symbol)
	if !ok {
		http.Error(w, "symbol not running", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) symbolStatus(symbol string) (symbolStatus, bool) {
	engine := s.sup.Engine(symbol)
	if engine == nil {
		return symbolStatus{}, false
	}
	return symbolStatus{
		Symbol:     symbol,
		State:      string(engine.State()),
		HaltReason: engine.HaltReason(),
		TradeCount: engine.TradeCount(),
		Position:   engine.Position(),
	}, true
}

// flattenRequest is the optional JSON body for a manual flatten trigger.
type flattenRequest struct {
	ClosePosition bool `json:"close_position"`
}

// handleFlattenSymbol forces symbol's worker into Flattening on its next
// cycle, optionally market-closing its position.
func (s *Server) handleFlattenSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if s.sup.Engine(symbol) == nil {
		http.Error(w, "symbol not running", http.StatusNotFound)
		return
	}

	var req flattenRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	s.sup.RequestFlatten(symbol, req.ClosePosition)
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"symbol":         symbol,
		"flatten_queued": true,
		"close_position": req.ClosePosition,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("server: failed to encode JSON response")
	}
}
