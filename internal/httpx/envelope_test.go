package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dehive/internal/httpx"
	apperr "dehive/pkg/errors"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		code apperr.Code
		want int
	}{
		{apperr.CodeInvalidArgument, http.StatusBadRequest},
		{apperr.CodeUnauthenticated, http.StatusUnauthorized},
		{apperr.CodePermissionDenied, http.StatusForbidden},
		{apperr.CodeNotFound, http.StatusNotFound},
		{apperr.CodeAlreadyExists, http.StatusConflict},
		{apperr.CodeUnavailable, http.StatusServiceUnavailable},
		{apperr.CodeInternal, http.StatusInternalServerError},
		{apperr.CodeUnknown, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := httpx.StatusOf(c.code); got != c.want {
			t.Errorf("StatusOf(%s) = %d, want %d", c.code, got, c.want)
		}
	}
}

func TestFailShapesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	httpx.Fail(rec, req, apperr.NotFound("thing not found"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var env httpx.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Success || env.StatusCode != http.StatusNotFound || env.Message != "thing not found" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Error == nil {
		t.Fatalf("failure envelope must carry an error body")
	}
}

func TestFailHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	httpx.Fail(rec, req, apperr.Wrap(apperr.CodeInternal, "pg connection refused on 10.0.0.3", nil))

	var env httpx.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Message != "internal error" {
		t.Fatalf("internal details leaked: %q", env.Message)
	}
}

func TestOKEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.OK(rec, http.StatusCreated, "created", map[string]string{"id": "1"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var env httpx.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !env.Success || env.StatusCode != http.StatusCreated || env.Message != "created" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}
