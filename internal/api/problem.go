package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/liftlog/liftlog/internal/eventlog"
	"github.com/liftlog/liftlog/internal/merge"
	"github.com/liftlog/liftlog/internal/syncservice"
	"github.com/liftlog/liftlog/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusUnauthorized: {
		typeURI: "https://liftlog.dev/errors/unauthorized",
		title:   "Unauthorized",
	},
	http.StatusBadRequest: {
		typeURI: "https://liftlog.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://liftlog.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusInternalServerError: {
		typeURI: "https://liftlog.dev/errors/internal-error",
		title:   "Internal Server Error",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://liftlog.dev/errors/validation-error",
		title:   "Validation Error",
	},
	http.StatusServiceUnavailable: {
		typeURI: "https://liftlog.dev/errors/service-unavailable",
		title:   "Service Unavailable",
	},
	http.StatusConflict: {
		typeURI: "https://liftlog.dev/errors/conflict",
		title:   "Conflict",
	},
	http.StatusForbidden: {
		typeURI: "https://liftlog.dev/errors/forbidden",
		title:   "Forbidden",
	},
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt, ok := problemTypes[status]
	if !ok {
		pt = struct {
			typeURI string
			title   string
		}{
			typeURI: "https://liftlog.dev/errors/unknown",
			title:   http.StatusText(status),
		}
	}

	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// ProblemWithErrors extends Problem with per-event validation errors.
// The sync endpoint does not use it: its 422s are plain Problems, and
// a partially rejected batch is a 200 listing rejected_event_ids.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with
// field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	pt := problemTypes[http.StatusUnprocessableEntity]

	p := ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapError converts a domain error to a Problem Details response.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, eventlog.ErrMergeConflict), errors.Is(err, merge.ErrMergeConflict):
		WriteProblem(w, r, http.StatusConflict, "merge target already owns conflicting (device_id, sequence_number) data")
	case errors.Is(err, syncservice.ErrValidationRejected):
		WriteProblem(w, r, http.StatusUnprocessableEntity, "batch failed request-level validation: "+err.Error())
	case errors.Is(err, eventlog.ErrStorageFault):
		WriteProblem(w, r, http.StatusServiceUnavailable, "storage unreachable")
	default:
		// Never expose internal error details to the client.
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
