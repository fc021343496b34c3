package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/target/cyano-batch/internal/domain/model"
)

type customErr struct{}

func (*customErr) Error() string { return "custom" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), "timeout"},
		{"broker", fmt.Errorf("submit: %w: %w", model.ErrBrokerUnavailable, goerrors.New("dial")), "broker_unavailable"},
		{"custom type", fmt.Errorf("wrap: %w", &customErr{}), "errors_customerr"},
		{"plain", goerrors.New("boom"), "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
