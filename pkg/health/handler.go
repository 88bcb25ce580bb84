package health

import (
	"net/http"

	"github.com/etlstack/platform/pkg/server/httpx"
	"github.com/gorilla/mux"
)

type Handler struct {
	checker *Checker
}

func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.handleCheck).Methods(http.MethodGet)
}

// handleCheck never errors to the caller; dependency failures are reflected
// in the individual flags only.
func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	status := h.checker.Check(r.Context())
	httpx.WriteJSON(w, http.StatusOK, status)
}
