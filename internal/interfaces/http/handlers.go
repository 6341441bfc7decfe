package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"tokentruth/internal/certainty"
	"tokentruth/internal/contracts"
	"tokentruth/internal/pipeline"
)

// Handlers binds the HTTP surface to the analysis pipeline. Upstream
// failures never turn into non-200 responses; only a request the server
// cannot parse or validate is rejected.
type Handlers struct {
	pipeline *pipeline.Pipeline
	metrics  *MetricsRegistry
	log      zerolog.Logger
}

func NewHandlers(p *pipeline.Pipeline, metrics *MetricsRegistry, log zerolog.Logger) *Handlers {
	return &Handlers{
		pipeline: p,
		metrics:  metrics,
		log:      log.With().Str("component", "http").Logger(),
	}
}

type errorBody struct {
	Error certainty.StructuredError `json:"error"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("response encoding failed")
	}
}

func (h *Handlers) badRequest(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusBadRequest, errorBody{
		Error: certainty.NewError(certainty.CodeParseError, "request", message),
	})
}

func decodeBody(r *http.Request, into interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}

func validInstances(instances []contracts.ChainInstance) string {
	if len(instances) == 0 {
		return "instances must not be empty"
	}
	for _, inst := range instances {
		if inst.Chain == "" || inst.Address == "" {
			return "every instance needs chain and address"
		}
	}
	return ""
}

// ContractTruth handles POST /v1/contracts/truth:analyze.
func (h *Handlers) ContractTruth(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ContractRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if msg := validInstances(req.Instances); msg != "" {
		h.badRequest(w, msg)
		return
	}

	timer := h.metrics.StartAnalysisTimer("contracts")
	resp := h.pipeline.ContractTruth(r.Context(), req)
	timer.Stop()

	for _, inst := range resp.Instances {
		for _, e := range inst.Errors {
			h.metrics.RecordProviderError(e.Source, string(e.Code))
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// LiquiditySnapshot handles POST /v1/liquidity/intel:snapshot.
func (h *Handlers) LiquiditySnapshot(w http.ResponseWriter, r *http.Request) {
	var req pipeline.LiquidityRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Chain == "" || req.Address == "" {
		h.badRequest(w, "chain and address are required")
		return
	}

	timer := h.metrics.StartAnalysisTimer("liquidity")
	resp := h.pipeline.LiquiditySnapshot(r.Context(), req)
	timer.Stop()

	for _, e := range resp.Snapshot.Errors {
		h.metrics.RecordProviderError(e.Source, string(e.Code))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// SocialSentiment handles POST /v1/social/sentiment:score.
func (h *Handlers) SocialSentiment(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SocialRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Symbol == "" {
		h.badRequest(w, "asset is required")
		return
	}

	timer := h.metrics.StartAnalysisTimer("social")
	resp := h.pipeline.SocialSentiment(r.Context(), req)
	timer.Stop()

	for _, e := range resp.Report.Errors {
		h.metrics.RecordProviderError(e.Source, string(e.Code))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Recommend handles POST /v1/decision:recommend.
func (h *Handlers) Recommend(w http.ResponseWriter, r *http.Request) {
	var req pipeline.RecommendRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if msg := validInstances(req.Instances); msg != "" {
		h.badRequest(w, msg)
		return
	}

	timer := h.metrics.StartAnalysisTimer("decision")
	resp := h.pipeline.Recommend(r.Context(), req)
	timer.Stop()

	h.metrics.RecordDecision(resp.Decision.Recommendation)

	h.writeJSON(w, http.StatusOK, resp)
}

type healthBody struct {
	Status string `json:"status"`
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthBody{Status: "ok"})
}

// NotFound answers unknown routes in the same JSON shape as everything else.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, http.StatusNotFound, errorBody{
		Error: certainty.NewError(certainty.CodeInternalError, "request", "no such route: "+r.URL.Path),
	})
}
