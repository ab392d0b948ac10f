package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/dukerupert/choreweek/internal/apperr"
	"github.com/dukerupert/choreweek/internal/chore"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", &apperr.OpError{Kind: apperr.ErrInvalid, Op: "x"}, http.StatusBadRequest},
		{"too large", &apperr.OpError{Kind: apperr.ErrInvalid, Op: "upload proof", Err: fmt.Errorf("%w: 2 bytes", chore.ErrTooLarge)}, http.StatusRequestEntityTooLarge},
		{"precondition", &apperr.OpError{Kind: apperr.ErrPrecondition, Op: "set done", Err: chore.ErrNoProof}, http.StatusConflict},
		{"not found", &apperr.OpError{Kind: apperr.ErrNotFound, Op: "set members"}, http.StatusNotFound},
		{"storage", apperr.Storage("load week", errors.New("disk")), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor = %d, want %d", got, tt.want)
			}
		})
	}
}
