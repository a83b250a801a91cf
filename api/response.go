package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/strand-ai/strand/internal/log"
)

// errorBody is the inner payload of an error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes {"data": <data>} with the given status code. The body
// is encoded into a buffer first so headers are only sent after encoding
// succeeds and a real 500 can still go out when it does not.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	if logger == nil {
		logger = log.NewNop()
	}

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(map[string]any{"data": data}); err != nil {
		logger.Error("encode json response", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("write response body", "error", err)
	}
}

// writeError writes {"error": {"code", "message"}} with the given status.
func writeError(w http.ResponseWriter, status int, code, message string, logger log.Logger) {
	if logger == nil {
		logger = log.NewNop()
	}

	buf := new(bytes.Buffer)
	envelope := map[string]errorBody{"error": {Code: code, Message: message}}
	if err := json.NewEncoder(buf).Encode(envelope); err != nil {
		logger.Error("encode error response", "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Debug("write error body", "error", err)
	}
}
