// Package handler translates HTTP requests into service calls and service
// results into JSON (or event-stream) responses.
//
// Handlers hold no business rules. They parse input, call one service
// method and render the result; every error goes through writeError so the
// status mapping lives in exactly one place.
package handler

// RESPONSE HELPERS:
// Every error response from the API has the same shape:
//
//	{"error": "not_found", "message": "family not found; please check the code"}
//
// Validation errors also name the offending field:
//
//	{"error": "validation_error", "message": "please enter a family name", "field": "name"}

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/chore-tracker/internal/apperror"
	"github.com/sakif/chore-tracker/internal/auth"
)

// maxBodyBytes caps JSON request bodies. Nothing the API accepts comes close.
const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sends a JSON response. Headers and status go out before the
// body; once Encode starts writing they can no longer change.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorMapping pairs a sentinel with its HTTP status and error code. The
// first match wins.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrConfirmationRequired, http.StatusPreconditionRequired, "confirmation_required"},
}

// writeError maps a domain error to a status code and sends it.
//
// errors.Is walks the whole chain, so a service error like
// fmt.Errorf("service/family: joining: %w", apperror.NotFoundMessage(...))
// still lands on 404. Anything unrecognised is a backend failure: the
// details are logged, never sent, and the client is told it may retry.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	hasAppErr := errors.As(err, &appErr)

	for _, m := range errorMapping {
		if !errors.Is(err, m.target) {
			continue
		}
		resp := ErrorResponse{Error: m.code, Message: m.target.Error()}
		if hasAppErr {
			resp.Message = appErr.Message
			resp.Field = appErr.Field
		}
		writeJSON(w, m.status, resp)
		return
	}

	slog.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "backend_error",
		Message: "something went wrong on our side; please try again",
	})
}

// decodeJSON reads a single JSON object into dst. Unknown fields are
// rejected so typos in client code fail loudly.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "request body is empty")
		}
		return apperror.ValidationFailed("body", "invalid JSON body: "+err.Error())
	}
	if dec.More() {
		return apperror.ValidationFailed("body", "request body must contain a single JSON object")
	}
	return nil
}

// callerID returns the authenticated user. Routes that call it sit behind
// auth.RequireAuth, so a missing id is a wiring bug, reported as 401.
func callerID(r *http.Request) (string, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return "", apperror.Unauthorized("valid authentication required")
	}
	return id, nil
}
