package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"civic-dispatch/core/auth"
	"civic-dispatch/core/dispatch"
	"civic-dispatch/core/store"
	"civic-dispatch/core/utils"
)

const (
	errServerError  = "server error"
	maxPayloadBytes = 1 << 20
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorPayload{"error": {Code: code, Message: message}})
}

// writeServiceError maps dispatch and store failures onto HTTP statuses.
// Anything it does not recognise is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, logger *utils.Logger, err error) {
	var derr *dispatch.Error
	message := ""
	if errors.As(err, &derr) {
		message = derr.Message
	}
	switch {
	case errors.Is(err, dispatch.ErrValidation):
		writeError(w, http.StatusBadRequest, dispatch.Code(err), message)
	case errors.Is(err, dispatch.ErrNotFound), errors.Is(err, store.ErrNotFound):
		if message == "" {
			message = "not found"
		}
		writeError(w, http.StatusNotFound, codeOr(err, "not_found"), message)
	case errors.Is(err, dispatch.ErrConflict), errors.Is(err, store.ErrConflict):
		if message == "" {
			message = "concurrent modification, retry"
		}
		writeError(w, http.StatusConflict, codeOr(err, "conflict"), message)
	default:
		logger.Errorf("handler error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", errServerError)
	}
}

func codeOr(err error, fallback string) string {
	if c := dispatch.Code(err); c != "internal" {
		return c
	}
	return fallback
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes))
	return dec.Decode(v)
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
}

func parseIntDefault(val string, def int) int {
	if val == "" {
		return def
	}
	if v, err := strconv.Atoi(val); err == nil {
		return v
	}
	return def
}

func parseInt64(val string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func pathID(r *http.Request, key string) (int64, bool) {
	return parseInt64(pathParams(r)[key])
}

func actor(r *http.Request) string {
	return auth.Username(r.Context())
}
