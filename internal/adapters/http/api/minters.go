package api

import (
	"context"
	"net/http"

	"github.com/okian/scorenft/internal/domain/model"
	"github.com/okian/scorenft/internal/domain/types"
)

// MinterDependencies covers the authorization registry.
type MinterDependencies interface {
	AuthorizeMinter(ctx context.Context, id model.Identity) error
	RevokeMinter(ctx context.Context, id model.Identity) error
	IsAuthorizedMinter(ctx context.Context, id model.Identity) (types.MinterView, error)
}

// MintersHandler handles minter registry requests.
type MintersHandler struct {
	deps MinterDependencies
}

// NewMintersHandler creates a minters handler.
func NewMintersHandler(deps MinterDependencies) *MintersHandler {
	return &MintersHandler{deps: deps}
}

// HandleGetMinter handles GET /v1/minters/{identity}.
func (h *MintersHandler) HandleGetMinter(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, nil)
}

// HandleAuthorizeMinter handles PUT /v1/minters/{identity}.
func (h *MintersHandler) HandleAuthorizeMinter(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.deps.AuthorizeMinter)
}

// HandleRevokeMinter handles DELETE /v1/minters/{identity}.
func (h *MintersHandler) HandleRevokeMinter(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.deps.RevokeMinter)
}

// respond runs mutate, if any, and answers with the resulting predicate.
func (h *MintersHandler) respond(w http.ResponseWriter, r *http.Request, mutate func(context.Context, model.Identity) error) {
	id, err := pathIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if mutate != nil {
		if err := mutate(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	view, err := h.deps.IsAuthorizedMinter(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
