package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capmd/capmd/internal/logger"
	"github.com/capmd/capmd/pkg/models"
)

// Envelope is the uniform response body. Every JSON response is either
// {ok:true, data} or {ok:false, error:{code, message, details?}}; archive
// downloads are the one non-JSON exception.
type Envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries a machine-readable code from the closed set in
// models/codes.go plus a human-readable message.
type ErrorBody struct {
	Code    models.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details map[string]any   `json:"details,omitempty"`
}

func dataEnvelope(data any) Envelope {
	return Envelope{OK: true, Data: data}
}

func errorEnvelope(code models.ErrorCode, message string, details map[string]any) Envelope {
	return Envelope{OK: false, Error: &ErrorBody{Code: code, Message: message, Details: details}}
}

// writeEnvelope serializes env with the given status code. Encoding failures
// are logged; at that point headers are already out and nothing can be done
// for the client.
func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		logger.Error("response encoding failed", logger.Err(err))
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, dataEnvelope(data))
}

func writeCodeError(w http.ResponseWriter, status int, code models.ErrorCode, message string) {
	writeEnvelope(w, status, errorEnvelope(code, message, nil))
}

// writeError classifies a domain error into the envelope. Errors outside the
// known set are logged and surfaced as an opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		logger.ErrorCtx(r.Context(), "request failed",
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Err(err))
		message = "internal server error"
	}
	writeCodeError(w, status, code, message)
}

// classify maps domain sentinels onto HTTP status and error code.
//
// Capability failures collapse onto 404 INVALID_KEY: an unknown token, an
// expired key, a wrong tier, and an out-of-scope path are indistinguishable
// from the outside. Only an actively revoked key is acknowledged with 410.
func classify(err error) (int, models.ErrorCode, string) {
	switch {
	case errors.Is(err, models.ErrKeyRevoked):
		return http.StatusGone, models.CodeKeyRevoked, "key has been revoked"
	case errors.Is(err, models.ErrKeyNotFound):
		return http.StatusNotFound, models.CodeInvalidKey, "invalid or unknown key"

	case errors.Is(err, models.ErrInvalidPath):
		return http.StatusBadRequest, models.CodeInvalidPath, err.Error()
	case errors.Is(err, models.ErrETagMismatch):
		return http.StatusPreconditionFailed, models.CodeConflict, "etag precondition failed"
	case errors.Is(err, models.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, models.CodePayloadTooLarge, err.Error()
	case errors.Is(err, models.ErrQuotaExceeded):
		return http.StatusRequestEntityTooLarge, models.CodeQuotaExceeded, err.Error()

	case errors.Is(err, models.ErrFileDeleted):
		return http.StatusGone, models.CodeFileDeleted, "file has been deleted"
	case errors.Is(err, models.ErrRecoveryExpired):
		return http.StatusNotFound, models.CodeFileNotFound, "file not found"
	case errors.Is(err, models.ErrFileNotFound):
		return http.StatusNotFound, models.CodeFileNotFound, "file not found"
	case errors.Is(err, models.ErrFileExists):
		return http.StatusConflict, models.CodeFileAlreadyExists, "file already exists"
	case errors.Is(err, models.ErrSourceNotFound):
		return http.StatusNotFound, models.CodeSourceNotFound, "source file not found"
	case errors.Is(err, models.ErrDestinationExists):
		return http.StatusConflict, models.CodeConflict, "destination path is occupied"

	case errors.Is(err, models.ErrFolderNotFound):
		return http.StatusNotFound, models.CodeFolderNotFound, "folder not found"
	case errors.Is(err, models.ErrFolderExists):
		return http.StatusConflict, models.CodeFolderAlreadyExists, "folder already exists"
	case errors.Is(err, models.ErrFolderNotEmpty):
		return http.StatusConflict, models.CodeFolderNotEmpty, "folder is not empty"

	case errors.Is(err, models.ErrAppendNotFound):
		return http.StatusNotFound, models.CodeAppendNotFound, "append entry not found"
	case errors.Is(err, models.ErrInvalidAppendID):
		return http.StatusBadRequest, models.CodeInvalidAppendID, err.Error()
	case errors.Is(err, models.ErrInvalidAuthor):
		return http.StatusBadRequest, models.CodeInvalidAuthor, err.Error()
	case errors.Is(err, models.ErrInvalidRef):
		return http.StatusBadRequest, models.CodeInvalidRequest, err.Error()

	case errors.Is(err, models.ErrWorkspaceNotFound):
		return http.StatusNotFound, models.CodeWorkspaceNotFound, "workspace not found"
	case errors.Is(err, models.ErrWebhookNotFound):
		return http.StatusNotFound, models.CodeWebhookNotFound, "webhook subscription not found"

	case errors.Is(err, models.ErrQueryTooLong):
		return http.StatusBadRequest, models.CodeQueryTooLong, err.Error()
	case errors.Is(err, models.ErrQueryTooBroad):
		return http.StatusBadRequest, models.CodeQueryTooBroad, err.Error()
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests, models.CodeRateLimited, "rate limit exceeded"

	case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrOwnerNotFound):
		return http.StatusUnauthorized, models.CodeUnauthorized, "invalid credentials"
	case errors.Is(err, models.ErrDuplicateOwner):
		return http.StatusConflict, models.CodeConflict, "account already exists"

	case errors.Is(err, models.ErrInvalidRequest):
		return http.StatusBadRequest, models.CodeInvalidRequest, err.Error()
	}
	return http.StatusInternalServerError, models.CodeServerError, err.Error()
}
