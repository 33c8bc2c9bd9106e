package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/api/shared"
	"github.com/forgeworks/genbatch/internal/domain"
)

// getRequesterIDFromContext extracts the requester's UUID from the request
// context, where the requester middleware placed it.
func getRequesterIDFromContext(r *http.Request) (uuid.UUID, bool) {
	requesterID, ok := r.Context().Value(shared.RequesterIDContextKey).(uuid.UUID)
	if !ok || requesterID == uuid.Nil {
		return uuid.Nil, false
	}
	return requesterID, true
}

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.ErrInvalidID
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidID
	}
	return id, nil
}

// getPathIndex extracts a non-negative integer path parameter.
func getPathIndex(r *http.Request, paramName string) (int, error) {
	pathParam := chi.URLParam(r, paramName)
	index, err := strconv.Atoi(pathParam)
	if err != nil || index < 0 {
		return 0, domain.ErrValidation
	}
	return index, nil
}
