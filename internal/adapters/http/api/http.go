// Package api exposes the score ledger operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/scorenft/internal/adapters/repository"
	"github.com/okian/scorenft/internal/domain/authz"
	"github.com/okian/scorenft/internal/domain/dedupe"
	"github.com/okian/scorenft/internal/domain/ledger"
	"github.com/okian/scorenft/internal/domain/model"
	"github.com/okian/scorenft/internal/domain/scoring"
	"github.com/okian/scorenft/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Each handler depends only on the
// narrow interface it needs.
type Dependencies interface {
	ContractDependencies
	RecordDependencies
	MinterDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	auth            *authMiddleware
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	contractHandler *ContractHandler
	recordsHandler  *RecordsHandler
	mintersHandler  *MintersHandler
}

// NewServer creates an API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, authenticator Authenticator) *Server {
	return &Server{
		auth:            newAuthMiddleware(authenticator),
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		contractHandler: NewContractHandler(deps),
		recordsHandler:  NewRecordsHandler(deps),
		mintersHandler:  NewMintersHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /v1/initialize", s.route("initialize", s.contractHandler.HandleInitialize))
	mux.HandleFunc("GET /v1/contract", s.route("contract", s.contractHandler.HandleGetContract))

	mux.HandleFunc("POST /v1/records", s.route("mint", s.recordsHandler.HandleMint))
	mux.HandleFunc("GET /v1/records/{identity}", s.route("metadata", s.recordsHandler.HandleGetMetadata))
	mux.HandleFunc("GET /v1/records/{identity}/score", s.route("score", s.recordsHandler.HandleGetScore))
	mux.HandleFunc("POST /v1/records/{identity}/repayments", s.route("repayments", s.recordsHandler.HandleRepayment))
	mux.HandleFunc("PUT /v1/records/{identity}/history-hash", s.route("history_hash", s.recordsHandler.HandleUpdateHistoryHash))

	mux.HandleFunc("GET /v1/minters/{identity}", s.route("minters", s.mintersHandler.HandleGetMinter))
	mux.HandleFunc("PUT /v1/minters/{identity}", s.route("minters", s.mintersHandler.HandleAuthorizeMinter))
	mux.HandleFunc("DELETE /v1/minters/{identity}", s.route("minters", s.mintersHandler.HandleRevokeMinter))
}

func (s *Server) route(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return MetricsMiddleware(s.auth.wrap(h), endpoint)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps contract errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrNotInitialized):
		writeError(w, http.StatusConflict, "not_initialized", err)
	case errors.Is(err, authz.ErrAlreadyInitialized):
		writeError(w, http.StatusConflict, "already_initialized", err)
	case errors.Is(err, authz.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not_authorized", err)
	case errors.Is(err, ledger.ErrAlreadyMinted):
		writeError(w, http.StatusConflict, "already_minted", err)
	case errors.Is(err, ledger.ErrNoRecord):
		writeError(w, http.StatusNotFound, "no_record", err)
	case errors.Is(err, scoring.ErrScoreOverflow):
		writeError(w, http.StatusUnprocessableEntity, "score_overflow", err)
	case errors.Is(err, model.ErrInvalidIdentity), errors.Is(err, model.ErrInvalidHistoryHash),
		errors.Is(err, dedupe.ErrInvalidRepaymentID):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusServiceUnavailable, "conflict", err)
	default:
		logger.Get().Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", errors.New("internal error"))
	}
}

// decodeBody reads a JSON body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// pathIdentity parses the {identity} path value.
func pathIdentity(r *http.Request) (model.Identity, error) {
	id, err := model.ParseIdentity(r.PathValue("identity"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return id, nil
}
