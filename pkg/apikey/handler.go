package apikey

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/etlstack/platform/pkg/server/httpx"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// OwnerResolver extracts the authenticated caller from the request; the auth
// middleware provides the implementation.
type OwnerResolver func(r *http.Request) string

type Handler struct {
	service *Service
	owner   OwnerResolver
}

func NewHandler(service *Service, owner OwnerResolver) *Handler {
	return &Handler{service: service, owner: owner}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/keys", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/keys", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/keys/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/keys/{id}", h.handleUpdate).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/keys/{id}", h.handleDelete).Methods(http.MethodDelete)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateKeyInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request")
		return
	}
	key, err := h.service.Create(r.Context(), h.owner(r), input)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, key)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.List(r.Context(), h.owner(r), httpx.ParseLimit(r, 50))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list api keys")
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list api keys")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": keys})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid key id")
		return
	}
	key, err := h.service.Get(r.Context(), h.owner(r), id)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "api key not found")
			return
		}
		logger.Log.WithError(err).Error("failed to get api key")
		httpx.WriteError(w, http.StatusInternalServerError, "failed to get api key")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, key)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid key id")
		return
	}
	var input UpdateKeyInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request")
		return
	}
	key, err := h.service.Update(r.Context(), h.owner(r), id, input)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "api key not found")
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, key)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid key id")
		return
	}
	if err := h.service.Delete(r.Context(), h.owner(r), id); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "api key not found")
			return
		}
		logger.Log.WithError(err).Error("failed to delete api key")
		httpx.WriteError(w, http.StatusInternalServerError, "failed to delete api key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
