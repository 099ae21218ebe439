package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestKind_Status(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindInvalidDate, http.StatusBadRequest},
		{KindInvalidRange, http.StatusBadRequest},
		{KindReference, http.StatusBadRequest},
		{KindAuth, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.kind.Status(); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.kind, tt.want, got)
		}
	}
}

func TestMissingFields_ListsAll(t *testing.T) {
	err := MissingFields("start_time", "end_time")
	if err.Kind != KindValidation {
		t.Fatalf("expected validation kind, got %s", err.Kind)
	}
	if len(err.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %v", err.Fields)
	}
	if err.Error() != "missing required fields: start_time, end_time" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", Conflict("taken"))
	if KindOf(err) != KindConflict {
		t.Errorf("expected conflict, got %s", KindOf(err))
	}
	if !Is(err, KindConflict) {
		t.Error("expected Is to match conflict")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("expected plain errors to be internal")
	}
}

func TestFromPG(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"exclusion", &pgconn.PgError{Code: "23P01"}, KindConflict},
		{"unique", &pgconn.PgError{Code: "23505"}, KindConflict},
		{"foreign key", &pgconn.PgError{Code: "23503"}, KindReference},
		{"check", &pgconn.PgError{Code: "23514"}, KindValidation},
		{"no rows", pgx.ErrNoRows, KindNotFound},
		{"other", errors.New("connection reset"), KindInternal},
		{"already typed", Forbidden("no"), KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromPG("op", tt.err)
			if KindOf(got) != tt.want {
				t.Errorf("expected %s, got %s", tt.want, KindOf(got))
			}
		})
	}
	if FromPG("op", nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestHTTPErrorHandler(t *testing.T) {
	e := echo.New()
	h := HTTPErrorHandler(zerolog.Nop())

	t.Run("typed error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rec := httptest.NewRecorder()
		h(MissingFields("interventionType"), e.NewContext(req, rec))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		var body Response
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Error != "validation" || len(body.MissingFields) != 1 {
			t.Errorf("unexpected body %+v", body)
		}
	})

	t.Run("internal error hides cause", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		h(errors.New("secret dsn leaked"), e.NewContext(req, rec))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		var body Response
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Message != "internal server error" {
			t.Errorf("expected generic message, got %q", body.Message)
		}
	})

	t.Run("echo error passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		h(echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded"), e.NewContext(req, rec))

		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("expected 429, got %d", rec.Code)
		}
	})
}
