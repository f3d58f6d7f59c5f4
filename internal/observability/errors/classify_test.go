package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"app error code", apperrors.Provider("upstream down"), "provider"},
		{"wrapped app error", fmt.Errorf("stage: %w", apperrors.NotFound("gone")), "not_found"},
		{"plain error", goerrors.New("boom"), "errors_errorstring"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify() = %q, want %q", got, tc.want)
			}
		})
	}
}
