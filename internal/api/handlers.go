package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"svfe-monitor/internal/hub"
	"svfe-monitor/internal/kpi"
	"svfe-monitor/internal/model"
	"svfe-monitor/internal/service"
)

const (
	defaultAlertLimit = 10
	maxAlertLimit     = 500
	minBucket         = time.Minute
	maxBucket         = 24 * time.Hour
	timestampLayout   = "2006-01-02 15:04:05"
	notAvailable      = "N/A"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// fail maps a service error onto a terse response. Driver and SQL text never
// reaches the client.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrDataUnavailable):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("transaction store unavailable")
		writeError(w, http.StatusInternalServerError, "transaction store unavailable")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func sourceParam(r *http.Request) (model.Source, error) {
	src, ok := model.ParseSource(r.URL.Query().Get("source"))
	if !ok {
		return "", fmt.Errorf("invalid source %q", r.URL.Query().Get("source"))
	}
	return src, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func formatTimestamp(ts *time.Time) string {
	if ts == nil {
		return notAvailable
	}
	return ts.Format(timestampLayout)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) transactions(source model.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := h.svc.Transactions(r.Context(), source)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if records == nil {
			records = []model.TransactionRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

// kpiBody flattens a snapshot into the dashboard payload, one
// rate_of_code_<code> field per watched code.
func kpiBody(snap kpi.Snapshot) map[string]any {
	body := map[string]any{
		"total_transactions":          snap.Total,
		"successful_transactions":     snap.SuccessCount,
		"success_rate":                snap.SuccessRate,
		"refused_transactions":        snap.RefusalCount,
		"refusal_rate":                snap.RefusalRate,
		"most_frequent_refusal_code":  nil,
		"most_frequent_refusal_count": snap.MostFrequentCount,
		"refusal_code_distribution":   snap.RefusalCodes,
		"latest_update":               formatTimestamp(snap.LastTimestamp),
		"first_update":                formatTimestamp(snap.FirstTimestamp),
		"data_fresh":                  snap.DataFresh,
		"system_stable":               snap.SystemStable,
	}
	if snap.HasRefusalCode() {
		body["most_frequent_refusal_code"] = snap.MostFrequentCode
	}
	if snap.RefusalCodes == nil {
		body["refusal_code_distribution"] = map[int]int{}
	}
	for code, rate := range snap.CodeRates {
		body["rate_of_code_"+strconv.Itoa(code)] = rate
	}
	return body
}

func (h *handlers) kpis(source model.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := h.svc.Snapshot(r.Context(), source)
		if errors.Is(err, model.ErrInsufficientData) {
			writeJSON(w, http.StatusOK, kpiBody(kpi.Snapshot{}))
			return
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, kpiBody(snap))
	}
}

type distributionResponse struct {
	TerminalDistribution map[string]int        `json:"terminal_distribution"`
	Channels             []service.ChannelStat `json:"channels"`
	LatestUpdate         string                `json:"latest_update"`
}

func (h *handlers) terminalDistribution(w http.ResponseWriter, r *http.Request) {
	source, err := sourceParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dist, err := h.svc.TerminalDistribution(r.Context(), source)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := distributionResponse{
		TerminalDistribution: make(map[string]int, len(dist.Channels)),
		Channels:             dist.Channels,
		LatestUpdate:         formatTimestamp(dist.LatestUpdate),
	}
	for _, ch := range dist.Channels {
		resp.TerminalDistribution[strconv.Itoa(int(ch.Channel))] = ch.Count
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) issuerRefusal(w http.ResponseWriter, r *http.Request) {
	source, err := sourceParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	byName, err := boolParam(r, "names")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rates, err := h.svc.IssuerRefusal(r.Context(), source, byName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refusal_rate_per_issuer": rates})
}

func (h *handlers) systemStatus(w http.ResponseWriter, r *http.Request) {
	source, err := sourceParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.svc.Status(r.Context(), source)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) trends(source model.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q service.TrendQuery
		if raw := r.URL.Query().Get("bucket"); raw != "" {
			bucket, err := time.ParseDuration(raw)
			if err != nil || bucket < minBucket || bucket > maxBucket {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid bucket %q", raw))
				return
			}
			q.Bucket = bucket
		}
		latest, err := boolParam(r, "latest_day")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.LatestDayOnly = latest

		points, err := h.svc.Trends(r.Context(), source, q)
		if errors.Is(err, model.ErrInsufficientData) {
			writeError(w, http.StatusNotFound, "no trend data")
			return
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, points)
	}
}

func (h *handlers) alerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAlertLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxAlertLimit))
			return
		}
		limit = n
	}

	events, err := h.svc.RecentAlerts(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if events == nil {
		events = []model.AlertEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": events})
}

func (h *handlers) notifications(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := hub.ServeClient(h.hub, conn, h.logger)
	h.logger.Debug().Str("client_id", client.ID()).Msg("notification subscriber attached")
}
