package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dairyflow/internal/core"
	"dairyflow/internal/log"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Header("X-Cache", "MISS").
		Data(map[string]int{"count": 2}).
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("X-Cache") != "MISS" {
		t.Error("custom header not set")
	}
	if strings.TrimSpace(w.Body.String()) != `{"count":2}` {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestJSONResponseBuilder_Created(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().Created("/api/bills/b1").Data(map[string]string{"id": "b1"}).Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if w.Header().Get("Location") != "/api/bills/b1" {
		t.Errorf("Location = %q", w.Header().Get("Location"))
	}
}

func TestJSONResponseBuilder_NoContent(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().Status(http.StatusNoContent).Data("ignored").Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
}

func TestJSONResponseBuilder_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().Data(map[string]any{"f": func() {}}).Write(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestErrorFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{"validation", &core.ValidationError{Field: "month", Msg: "must be 1-12"}, http.StatusUnprocessableEntity, log.ErrorTypeValidation, "month"},
		{"wrapped validation", fmt.Errorf("generate: %w", &core.ValidationError{Field: "customer_id", Msg: "required"}), http.StatusUnprocessableEntity, log.ErrorTypeValidation, "customer_id"},
		{"no entries", core.ErrNoEntries, http.StatusUnprocessableEntity, log.ErrorTypeValidation, ""},
		{"duplicate bill", fmt.Errorf("bill 2024-11: %w", core.ErrDuplicateBill), http.StatusConflict, log.ErrorTypeConflict, ""},
		{"already paid", core.ErrAlreadyPaid, http.StatusConflict, log.ErrorTypeConflict, ""},
		{"conflict", core.ErrConflict, http.StatusConflict, log.ErrorTypeConflict, ""},
		{"not found", fmt.Errorf("customer c1: %w", core.ErrNotFound), http.StatusNotFound, log.ErrorTypeNotFound, ""},
		{"bad request", &badRequest{status: http.StatusRequestEntityTooLarge, msg: "too large"}, http.StatusRequestEntityTooLarge, log.ErrorTypeValidation, ""},
		{"unexpected", errors.New("disk full"), http.StatusInternalServerError, log.ErrorTypeInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorFor(tt.err).Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			var body ErrorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", body.Code, tt.wantCode)
			}
			if body.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", body.Field, tt.wantField)
			}
			if body.Error == "" {
				t.Error("Error message is empty")
			}
		})
	}
}
