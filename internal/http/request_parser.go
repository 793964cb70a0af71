// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request data:
// JSON bodies with a size cap, and typed query parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"dairyflow/internal/core"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// badRequest is a malformed request, as opposed to a well-formed one that
// fails validation.
type badRequest struct {
	status int
	msg    string
}

func (e *badRequest) Error() string { return e.msg }

// ParseDateParam reads a YYYY-MM-DD query parameter. An absent value returns
// def; a malformed one is a validation error.
func ParseDateParam(query url.Values, name string, def core.Date) (core.Date, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return def, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, &core.ValidationError{Field: name, Msg: "must be a YYYY-MM-DD date"}
	}
	return d, nil
}

// ParseDateRange reads the from and to parameters. Both are optional unless
// required is set.
func ParseDateRange(query url.Values, required bool) (from, to core.Date, err error) {
	if from, err = ParseDateParam(query, "from", core.Date{}); err != nil {
		return
	}
	if to, err = ParseDateParam(query, "to", core.Date{}); err != nil {
		return
	}
	if required && (from.IsZero() || to.IsZero()) {
		err = &core.ValidationError{Field: "from", Msg: "from and to are required"}
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from.Time) {
		err = &core.ValidationError{Field: "to", Msg: "must not be before from"}
	}
	return
}

// ParseBoolParam reads an optional boolean query parameter.
func ParseBoolParam(query url.Values, name string) (bool, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &core.ValidationError{Field: name, Msg: "must be true or false"}
	}
	return b, nil
}

// decodeJSON reads a single JSON object from the body into dst, refusing
// unknown fields, trailing data and bodies over maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return &badRequest{status: http.StatusUnsupportedMediaType, msg: "content type must be application/json"}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var ve *core.ValidationError
		switch {
		case errors.As(err, &ve):
			return ve
		case errors.As(err, &maxErr):
			return &badRequest{status: http.StatusRequestEntityTooLarge, msg: "request body too large"}
		case errors.Is(err, io.EOF):
			return &badRequest{status: http.StatusBadRequest, msg: "request body is empty"}
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return &badRequest{status: http.StatusBadRequest, msg: "malformed JSON"}
		case errors.As(err, &typeErr):
			return &core.ValidationError{Field: typeErr.Field, Msg: "has the wrong type"}
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return &badRequest{status: http.StatusBadRequest, msg: fmt.Sprintf("unknown field %q", field)}
		default:
			// Field types such as core.Date and decimal report their own
			// parse errors.
			return &core.ValidationError{Field: "body", Msg: err.Error()}
		}
	}
	if dec.More() {
		return &badRequest{status: http.StatusBadRequest, msg: "body must hold a single JSON object"}
	}
	return nil
}

// readBody returns the raw body bounded by maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, &badRequest{status: http.StatusRequestEntityTooLarge, msg: "request body too large"}
		}
		return nil, &badRequest{status: http.StatusBadRequest, msg: "read request body"}
	}
	return raw, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
