package metric

import (
	"encoding/json"
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
	r.HandleFunc("/metrics", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/metrics", h.handleCreate).Methods(http.MethodPost)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateMetricInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request")
		return
	}
	m, err := h.service.Create(r.Context(), input)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, m)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		NameSearch: r.URL.Query().Get("metric_name"),
		MetricType: r.URL.Query().Get("metric_type"),
		After:      httpx.QueryTime(r, "timestamp_after"),
		Before:     httpx.QueryTime(r, "timestamp_before"),
		MinValue:   httpx.QueryFloat(r, "min_value"),
		MaxValue:   httpx.QueryFloat(r, "max_value"),
		HasLabels:  httpx.QueryBool(r, "has_labels"),
		LabelKey:   r.URL.Query().Get("label_key"),
		LabelValue: r.URL.Query().Get("label_value"),
		Limit:      httpx.ParseLimit(r, 100),
	}
	metrics, err := h.service.List(r.Context(), filter)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list metrics")
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list metrics")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": metrics})
}
