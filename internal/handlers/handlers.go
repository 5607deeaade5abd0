// Package handlers carries the chi HTTP handlers for both services. All
// responses use the shared envelope in dtos.HTTPResponse.
package handlers

import (
	"errors"
	"net/http"

	"github.com/justinndidit/eventPipeline/internal/audit"
	"github.com/justinndidit/eventPipeline/internal/notification"
	"github.com/justinndidit/eventPipeline/internal/repositories"
	"github.com/justinndidit/eventPipeline/internal/utils"
)

// writeError maps service errors onto the envelope and status code:
// validation failures are 422, missing rows 404, illegal transitions 409,
// everything else 500.
func writeError(w http.ResponseWriter, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, notification.ErrInvalid), errors.Is(err, audit.ErrInvalid):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, repositories.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repositories.ErrConflict):
		status = http.StatusConflict
	}

	utils.WriteJson(w, status, utils.WriteResponseFailed(nil, err.Error(), message, nil))
}

func writeBadRequest(w http.ResponseWriter, err error, message string) {
	utils.WriteJson(w, http.StatusBadRequest, utils.WriteResponseFailed(nil, err.Error(), message, nil))
}
