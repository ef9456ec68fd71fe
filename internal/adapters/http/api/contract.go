package api

import (
	"context"
	"net/http"

	"github.com/okian/scorenft/internal/domain/model"
	"github.com/okian/scorenft/internal/domain/types"
)

// ContractDependencies covers contract setup and introspection.
type ContractDependencies interface {
	Initialize(ctx context.Context, admin model.Identity) error
	Contract(ctx context.Context) (types.ContractInfo, error)
}

// ContractHandler handles contract level requests.
type ContractHandler struct {
	deps ContractDependencies
}

// NewContractHandler creates a contract handler.
func NewContractHandler(deps ContractDependencies) *ContractHandler {
	return &ContractHandler{deps: deps}
}

type initializeRequest struct {
	Admin string `json:"admin"`
}

// HandleInitialize handles POST /v1/initialize.
func (h *ContractHandler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	admin, err := model.ParseIdentity(req.Admin)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.deps.Initialize(r.Context(), admin); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.ContractInfo{Initialized: true, Admin: admin, Minters: []model.Identity{}})
}

// HandleGetContract handles GET /v1/contract.
func (h *ContractHandler) HandleGetContract(w http.ResponseWriter, r *http.Request) {
	info, err := h.deps.Contract(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
