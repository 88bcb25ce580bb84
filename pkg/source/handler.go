package source

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/etlstack/platform/pkg/server/httpx"
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
	r.HandleFunc("/data-sources", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/data-sources", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/data-sources/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/data-sources/{id}", h.handleUpdate).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/data-sources/{id}", h.handleDelete).Methods(http.MethodDelete)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateSourceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request")
		return
	}
	src, err := h.service.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrDuplicateName) || errors.Is(err, ErrInvalidSourceType) {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Log.WithError(err).Error("failed to create data source")
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create data source")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, src)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		SourceType: r.URL.Query().Get("source_type"),
		IsActive:   httpx.QueryBool(r, "is_active"),
		NameSearch: r.URL.Query().Get("search"),
		Limit:      httpx.ParseLimit(r, 50),
	}
	sources, err := h.service.List(r.Context(), filter)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list data sources")
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list data sources")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": sources})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid data source id")
		return
	}
	src, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "data source not found")
			return
		}
		logger.Log.WithError(err).Error("failed to get data source")
		httpx.WriteError(w, http.StatusInternalServerError, "failed to get data source")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, src)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid data source id")
		return
	}
	var input UpdateSourceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request")
		return
	}
	src, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		switch {
		case errors.Is(err, ErrSourceNotFound):
			httpx.WriteError(w, http.StatusNotFound, "data source not found")
		case errors.Is(err, ErrDuplicateName), errors.Is(err, ErrInvalidSourceType):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			logger.Log.WithError(err).Error("failed to update data source")
			httpx.WriteError(w, http.StatusInternalServerError, "failed to update data source")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, src)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid data source id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "data source not found")
			return
		}
		logger.Log.WithError(err).Error("failed to delete data source")
		httpx.WriteError(w, http.StatusInternalServerError, "failed to delete data source")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
