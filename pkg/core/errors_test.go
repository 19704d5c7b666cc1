package core

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestErrorIsMatchesCode(t *testing.T) {
	err := NewError(CodeNoData, "nothing found").WithQuery("[out:json];")

	if !errors.Is(err, ErrNoData) {
		t.Fatal("expected error to match ErrNoData")
	}
	if errors.Is(err, ErrHTTP) {
		t.Fatal("did not expect error to match ErrHTTP")
	}

	wrapped := fmt.Errorf("fetch: %w", err)
	if !errors.Is(wrapped, ErrNoData) {
		t.Fatal("expected wrapped error to match ErrNoData")
	}
	if got := CodeOf(wrapped); got != CodeNoData {
		t.Errorf("CodeOf = %q, want %q", got, CodeNoData)
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := NewError(CodeTransport, "request failed").Wrap(io.ErrUnexpectedEOF)

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("expected cause to be reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), "unexpected EOF") {
		t.Errorf("message %q does not mention the cause", err.Error())
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf = %q, want empty", got)
	}
}

func TestHTTPError(t *testing.T) {
	tests := []struct {
		status   int
		guidance string
	}{
		{http.StatusTooManyRequests, "rate-limited"},
		{http.StatusGatewayTimeout, "timed out"},
		{http.StatusBadRequest, "query was rejected"},
		{http.StatusServiceUnavailable, "temporarily unavailable"},
		{http.StatusTeapot, "try again later"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := HTTPError("Overpass", tt.status, "boom")
			if err.Code != CodeHTTP {
				t.Errorf("code = %s, want %s", err.Code, CodeHTTP)
			}
			if err.Status != tt.status {
				t.Errorf("status = %d, want %d", err.Status, tt.status)
			}
			if !strings.Contains(err.Guidance, tt.guidance) {
				t.Errorf("guidance %q does not contain %q", err.Guidance, tt.guidance)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NewError(CodeInvalidArgument, "x"), http.StatusBadRequest},
		{NewError(CodeNoData, "x"), http.StatusNotFound},
		{NewError(CodeHTTP, "x"), http.StatusBadGateway},
		{NewError(CodeTransport, "x"), http.StatusBadGateway},
		{NewError(CodeParse, "x"), http.StatusBadGateway},
		{errors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
