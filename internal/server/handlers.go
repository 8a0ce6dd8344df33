package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tradelab/internal/order"
	"github.com/aristath/tradelab/internal/venue"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "tradelab",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleSystemStatus reports host metrics and the harness gauges: registered
// rules, ledger records, booked fills.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := s.getSystemStats()

	response := map[string]interface{}{
		"status":       "ok",
		"uptime_hours": time.Since(s.startupTime).Hours(),
		"cpu_percent":  cpuPercent,
		"ram_percent":  ramPercent,
		"rules":        s.registry.Size(),
		"records":      s.ledger.Size(),
		"fills":        s.book.Size(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// getSystemStats calculates CPU and RAM usage percentages. The CPU sample
// window is 100ms so the status call answers fast.
func (s *Server) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

type positionsResponse struct {
	Account   string           `json:"account"`
	Positions []venue.Position `json:"positions"`
}

// handlePositions returns the account's holdings aggregated from the
// venue's booked fills.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	positions := s.book.Positions(account)
	if positions == nil {
		positions = []venue.Position{}
	}

	s.writeJSON(w, http.StatusOK, positionsResponse{
		Account:   account,
		Positions: positions,
	})
}

type tradeStatusResponse struct {
	Key            string     `json:"key"`
	Status         string     `json:"status"`
	SettlementDate *time.Time `json:"settlementDate,omitempty"`
}

// Trade statuses the venue reports.
const (
	statusSettled = "SETTLED"
	statusPending = "PENDING"
)

// handleTradeStatus reports the settlement state of a booked fill: SETTLED
// once its settlement date is on or before today, PENDING before that. A
// fill that did not carry a settlement date gets one from the venue
// calendar and settlement cycle.
func (s *Server) handleTradeStatus(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	fill, ok := s.book.Trade(key)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("no trade for key %q", key),
		})
		return
	}

	settle := fill.SettlementDate
	if settle == nil {
		d, err := s.cal.AddBusinessDays(fill.At, s.cycle.Days())
		if err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("Failed to derive settlement date")
		} else {
			settle = &d
		}
	}

	status := statusPending
	if settle != nil && !dateOf(*settle).After(dateOf(s.clk.Now())) {
		status = statusSettled
	}

	s.writeJSON(w, http.StatusOK, tradeStatusResponse{
		Key:            key,
		Status:         status,
		SettlementDate: settle,
	})
}

// dateOf strips the time-of-day so settlement comparisons work on whole
// days.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type ruleResponse struct {
	Label   string `json:"label"`
	Calls   int64  `json:"calls"`
	DelayMs int64  `json:"delayMs"`
}

// handleRules lists the registered stub rules with their call counts.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	mappings := s.registry.Mappings()

	rules := make([]ruleResponse, 0, len(mappings))
	for _, rule := range mappings {
		rules = append(rules, ruleResponse{
			Label:   rule.Label(),
			Calls:   rule.CallCount(),
			DelayMs: rule.Delay().Milliseconds(),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rules),
		"rules": rules,
	})
}

// handleRulesReset drops every registered rule.
func (s *Server) handleRulesReset(w http.ResponseWriter, r *http.Request) {
	s.registry.Reset()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "reset",
		"rules":  s.registry.Size(),
	})
}

type verdictResponse struct {
	Field string `json:"field"`
	Fix   string `json:"fix"`
	MQ    string `json:"mq"`
	API   string `json:"api"`
	Match bool   `json:"match"`
}

type reconciliationResult struct {
	Key      string            `json:"key"`
	Passed   bool              `json:"passed"`
	Verdicts []verdictResponse `json:"verdicts"`
}

// handleReconciliation reconciles every correlation key the ledger knows.
// With ?format=report the response is the human-readable table instead of
// JSON.
func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	results := s.ledger.ReconcileAll()

	if r.URL.Query().Get("format") == "report" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, res := range results {
			fmt.Fprintln(w, res.DetailedReport())
		}
		return
	}

	passed := 0
	out := make([]reconciliationResult, 0, len(results))
	for _, res := range results {
		if res.Passed {
			passed++
		}
		verdicts := make([]verdictResponse, 0, len(res.Verdicts))
		for _, v := range res.Verdicts {
			verdicts = append(verdicts, verdictResponse{
				Field: v.Field,
				Fix:   v.Fix,
				MQ:    v.MQ,
				API:   v.API,
				Match: v.Match,
			})
		}
		out = append(out, reconciliationResult{
			Key:      res.Key,
			Passed:   res.Passed,
			Verdicts: verdicts,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(out),
		"passed":  passed,
		"results": out,
	})
}

type translateRequest struct {
	Text string `json:"text"`
}

type translateResponse struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	Price       string `json:"price,omitempty"`
	Quantity    int64  `json:"quantity"`
	TimeInForce string `json:"timeInForce"`
	Currency    string `json:"currency"`
	Expected    string `json:"expected,omitempty"`
}

// handleTranslate turns scenario prose into an order request.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if s.translator == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "translator not configured",
		})
		return
	}

	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "malformed request body",
		})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "text is required",
		})
		return
	}

	ord, err := s.translator.Translate(r.Context(), req.Text)
	if err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, toTranslateResponse(ord))
}

func toTranslateResponse(ord order.Request) translateResponse {
	resp := translateResponse{
		Symbol:      ord.Symbol(),
		Side:        ord.Side().String(),
		Type:        ord.Type().String(),
		Quantity:    ord.Quantity(),
		TimeInForce: ord.TimeInForce().String(),
		Currency:    ord.Currency(),
	}
	if price, ok := ord.Price(); ok {
		resp.Price = price.String()
	}
	if expected, ok := ord.Expected(); ok {
		resp.Expected = expected.String()
	}
	return resp
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
