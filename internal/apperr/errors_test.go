package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"conflict", Conflict("dup"), http.StatusConflict},
		{"conflict override", Conflict("dup").WithStatus(http.StatusBadRequest), http.StatusBadRequest},
		{"auth", Auth("nope"), http.StatusUnauthorized},
		{"forbidden", Forbidden("nope"), http.StatusForbidden},
		{"device", Device("reader"), http.StatusServiceUnavailable},
		{"crypto", Crypto("decrypt"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("ctx: %w", NotFound("missing")), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorMessageIncludesDetailsAndCause(t *testing.T) {
	cause := errors.New("short buffer")
	err := Validation("Datos inválidos", "a", "b").Wrap(cause)

	if got, want := err.Error(), "Datos inválidos: a; b: short buffer"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if !IsKind(err, KindValidation) {
		t.Error("expected validation kind")
	}
	if IsKind(errors.New("x"), KindValidation) {
		t.Error("plain errors have no kind")
	}
}
