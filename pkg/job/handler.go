package job

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/etlstack/platform/pkg/server/httpx"
	"github.com/etlstack/platform/pkg/source"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/etl-jobs", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/etl-jobs", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/etl-jobs/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/etl-jobs/{id}/retry", h.handleRetry).Methods(http.MethodPost)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateJobInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request")
		return
	}
	j, err := h.service.Create(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, source.ErrSourceNotFound):
			httpx.WriteError(w, http.StatusBadRequest, "data source does not exist")
		case errors.Is(err, ErrInactiveSource):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			logger.Log.WithError(err).Error("failed to create ETL job")
			httpx.WriteError(w, http.StatusInternalServerError, "failed to create ETL job")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, j)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		Statuses:        r.URL.Query()["status"],
		DataSourceName:  r.URL.Query().Get("data_source_name"),
		NameSearch:      r.URL.Query().Get("search"),
		CreatedAfter:    httpx.QueryTime(r, "created_after"),
		CreatedBefore:   httpx.QueryTime(r, "created_before"),
		StartedAfter:    httpx.QueryTime(r, "started_after"),
		StartedBefore:   httpx.QueryTime(r, "started_before"),
		CompletedAfter:  httpx.QueryTime(r, "completed_after"),
		CompletedBefore: httpx.QueryTime(r, "completed_before"),
		MinRecords:      httpx.QueryInt(r, "min_records"),
		MaxRecords:      httpx.QueryInt(r, "max_records"),
		HasErrors:       httpx.QueryBool(r, "has_errors"),
		Limit:           httpx.ParseLimit(r, 50),
	}
	if raw := r.URL.Query().Get("data_source"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid data_source filter")
			return
		}
		filter.DataSourceID = id
	}

	jobs, err := h.service.List(r.Context(), filter)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list ETL jobs")
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list ETL jobs")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": jobs})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	j, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "ETL job not found")
			return
		}
		logger.Log.WithError(err).Error("failed to get ETL job")
		httpx.WriteError(w, http.StatusInternalServerError, "failed to get ETL job")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, j)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	j, err := h.service.Retry(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrJobNotFound):
			httpx.WriteError(w, http.StatusNotFound, "ETL job not found")
		case errors.Is(err, ErrInvalidState):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			logger.Log.WithError(err).Error("failed to retry ETL job")
			httpx.WriteError(w, http.StatusInternalServerError, "failed to retry ETL job")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, j)
}
