package api

import (
	"context"
	"net/http"

	"github.com/okian/scorenft/internal/domain/model"
	"github.com/okian/scorenft/internal/domain/types"
)

// RecordDependencies covers the score ledger operations.
type RecordDependencies interface {
	Mint(ctx context.Context, id model.Identity, score uint64, hash model.HistoryHash) (types.Metadata, error)
	UpdateScore(ctx context.Context, id model.Identity, amount uint64, repaymentID string) (types.RepaymentResult, error)
	UpdateHistoryHash(ctx context.Context, id model.Identity, hash model.HistoryHash) (types.Metadata, error)
	GetScore(ctx context.Context, id model.Identity) (types.ScoreView, error)
	GetMetadata(ctx context.Context, id model.Identity) (types.Metadata, bool, error)
}

// RecordsHandler handles score record requests.
type RecordsHandler struct {
	deps RecordDependencies
}

// NewRecordsHandler creates a records handler.
func NewRecordsHandler(deps RecordDependencies) *RecordsHandler {
	return &RecordsHandler{deps: deps}
}

type mintRequest struct {
	Identity    string             `json:"identity"`
	Score       uint64             `json:"score"`
	HistoryHash *model.HistoryHash `json:"history_hash"`
}

type repaymentRequest struct {
	Amount      *uint64 `json:"amount"`
	RepaymentID string  `json:"repayment_id,omitempty"`
}

type historyHashRequest struct {
	HistoryHash *model.HistoryHash `json:"history_hash"`
}

// HandleMint handles POST /v1/records.
func (h *RecordsHandler) HandleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	id, err := model.ParseIdentity(req.Identity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.HistoryHash == nil {
		writeError(w, http.StatusBadRequest, "bad_request", errMissing("history_hash"))
		return
	}
	meta, err := h.deps.Mint(r.Context(), id, req.Score, *req.HistoryHash)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

// HandleRepayment handles POST /v1/records/{identity}/repayments.
func (h *RecordsHandler) HandleRepayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req repaymentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.Amount == nil {
		writeError(w, http.StatusBadRequest, "bad_request", errMissing("amount"))
		return
	}
	res, err := h.deps.UpdateScore(r.Context(), id, *req.Amount, req.RepaymentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleUpdateHistoryHash handles PUT /v1/records/{identity}/history-hash.
func (h *RecordsHandler) HandleUpdateHistoryHash(w http.ResponseWriter, r *http.Request) {
	id, err := pathIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req historyHashRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.HistoryHash == nil {
		writeError(w, http.StatusBadRequest, "bad_request", errMissing("history_hash"))
		return
	}
	meta, err := h.deps.UpdateHistoryHash(r.Context(), id, *req.HistoryHash)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// HandleGetScore handles GET /v1/records/{identity}/score.
func (h *RecordsHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	id, err := pathIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	view, err := h.deps.GetScore(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleGetMetadata handles GET /v1/records/{identity}.
func (h *RecordsHandler) HandleGetMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := pathIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	meta, found, err := h.deps.GetMetadata(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no_record", nil)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}
