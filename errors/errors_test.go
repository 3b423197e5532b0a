package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", NewInvalidParamsError("amount is required"), http.StatusBadRequest},
		{"not found", NewNotFoundError("booking not found"), http.StatusNotFound},
		{"unauthorized", NewUnauthorizedError("bad signature"), http.StatusUnauthorized},
		{"config", NewConfigError("razorpay credentials not configured"), http.StatusInternalServerError},
		{"provider with status", &ProviderError{StatusCode: 400, Description: "amount too low"}, http.StatusBadRequest},
		{"provider transport", &ProviderError{Description: "timeout"}, http.StatusBadGateway},
		{"wrapped provider", E(External, "razorpay rejected", &ProviderError{StatusCode: 401, Description: "auth"}), http.StatusUnauthorized},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestMessageHidesCause(t *testing.T) {
	err := E(Internal, "could not load booking", fmt.Errorf("pq: connection reset"))
	assert.Equal(t, "could not load booking", Message(err))
	assert.Contains(t, err.Error(), "pq: connection reset")
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("resolve: %w", NewNotFoundError("booking not found"))
	assert.Equal(t, NotFound, KindOf(err))
	assert.Equal(t, "entity not found", KindOf(err).String())
}
