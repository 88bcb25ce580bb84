package dashboard

import (
	"net/http"

	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/etlstack/platform/pkg/server/httpx"
	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/dashboard/stats", h.handleStats).Methods(http.MethodGet)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to compute dashboard stats")
		httpx.WriteError(w, http.StatusInternalServerError, "failed to compute dashboard stats")
		return
	}
	logger.Log.Info("Dashboard stats requested")
	httpx.WriteJSON(w, http.StatusOK, stats)
}
