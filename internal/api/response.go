package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"villaops/internal/database"
	"villaops/internal/models"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// envelope is the body of every API response.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, envelope{Success: false, Error: message})
}

// writeServiceError maps domain errors to status codes. Unknown errors are
// logged and reported as a generic failure.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrValidation),
		errors.Is(err, database.ErrPastDate),
		errors.Is(err, database.ErrDateTooFar):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotAvailable),
		errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, database.ErrStaffBusy),
		errors.Is(err, database.ErrInvalidTransition),
		errors.Is(err, database.ErrAlreadyResolved),
		errors.Is(err, database.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func pathID(ps httprouter.Params, name string) (int64, error) {
	id, err := strconv.ParseInt(ps.ByName(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := parseTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s; expected YYYY-MM-DD or RFC3339", name)
	}
	return t, nil
}

// parseTime accepts plain dates and RFC3339 timestamps.
func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(models.DateLayout, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// versionBody is accepted by status transition endpoints. A zero version
// skips the concurrency check.
type versionBody struct {
	Version int64 `json:"version"`
}

func decodeVersion(r *http.Request) (int64, error) {
	if r.ContentLength == 0 {
		return 0, nil
	}
	var body versionBody
	if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	return body.Version, nil
}
