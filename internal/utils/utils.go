package utils

import (
	"encoding/json"
	"net/http"

	"github.com/justinndidit/eventPipeline/internal/dtos"
)

func WriteJson(w http.ResponseWriter, status int, response *dtos.HTTPResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(*response)
}

func WriteJsonRaw(w http.ResponseWriter, status int, response interface{}) error {
	js, err := json.MarshalIndent(response, "", "")
	if err != nil {
		return err
	}

	js = append(js, '\n')
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
	return nil
}

func writeResponse(isSuccessful bool, data interface{}, err, message string, meta *dtos.PaginationMeta) *dtos.HTTPResponse {
	return &dtos.HTTPResponse{
		Success: isSuccessful,
		Data:    data,
		Error:   err,
		Message: message,
		Meta:    meta,
	}
}

func WriteResponseSuccess(data interface{}, err, message string, meta *dtos.PaginationMeta) *dtos.HTTPResponse {
	return writeResponse(true, data, err, message, meta)
}

func WriteResponseFailed(data interface{}, err, message string, meta *dtos.PaginationMeta) *dtos.HTTPResponse {
	return writeResponse(false, data, err, message, meta)
}
