package api

import (
	"encoding/json"
	"net/http"

	"github.com/capmd/capmd/internal/logger"
	"github.com/capmd/capmd/pkg/models"
)

// response is a buffered handler outcome: status, envelope, and the ETag
// header, if any. Buffering lets the idempotency layer persist and replay
// the exact bytes.
type response struct {
	status int
	data   any
	etag   string
	err    error
}

func errorResponse(err error) response {
	return response{err: err}
}

func (res response) envelope() (int, Envelope) {
	if res.err != nil {
		status, code, message := classify(res.err)
		return status, errorEnvelope(code, message, nil)
	}
	return res.status, dataEnvelope(res.data)
}

// idempotent executes fn under the request's Idempotency-Key, if present.
//
// The first request to carry a given key stores its response; every later
// request with the same key gets the stored bytes back with
// Idempotency-Replayed set, whether or not the operation would succeed
// today. Keys are namespaced per workspace so two workspaces cannot
// collide. Concurrent first requests race on the unique token index; the
// losers replay the winner's stored response.
func (s *handlers) idempotent(w http.ResponseWriter, r *http.Request, workspaceID, keyID string, fn func() response) {
	token := r.Header.Get("Idempotency-Key")
	if token == "" {
		writeResponse(w, r, fn())
		return
	}
	scoped := workspaceID + ":" + token

	if rec, err := s.svc.Store.GetIdempotencyRecord(r.Context(), scoped); err == nil && rec != nil {
		replay(w, rec)
		return
	}

	res := fn()
	status, env := res.envelope()
	body, err := json.Marshal(env)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec := &models.IdempotencyRecord{
		WorkspaceID: workspaceID,
		KeyID:       keyID,
		Token:       scoped,
		Status:      status,
		Body:        string(body),
	}
	winner, err := s.svc.Store.InsertIdempotencyIfAbsent(r.Context(), rec)
	if err != nil {
		// The operation already happened; failing to store the replay
		// record must not fail the request.
		logger.WarnCtx(r.Context(), "idempotency record store failed", logger.Err(err))
		writeBuffered(w, status, body, res.etag)
		return
	}
	if winner.ID != rec.ID {
		replay(w, winner)
		return
	}
	writeBuffered(w, status, body, res.etag)
}

func writeResponse(w http.ResponseWriter, r *http.Request, res response) {
	if res.err != nil {
		writeError(w, r, res.err)
		return
	}
	if res.etag != "" {
		w.Header().Set("ETag", res.etag)
	}
	writeData(w, res.status, res.data)
}

func writeBuffered(w http.ResponseWriter, status int, body []byte, etag string) {
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func replay(w http.ResponseWriter, rec *models.IdempotencyRecord) {
	w.Header().Set("Idempotency-Replayed", "true")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rec.Status)
	_, _ = w.Write([]byte(rec.Body))
}
