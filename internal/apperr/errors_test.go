package apperr

import (
	"fmt"
	"strings"
	"testing"
)

func TestIsMissingInput(t *testing.T) {
	err := fmt.Errorf("LoadFeatures: %w", NewMissingInput("feature table", "data/features_accounts.csv"))

	if !IsMissingInput(err) {
		t.Fatalf("expected wrapped MissingInputError, got %v", err)
	}
	if IsInsufficientData(err) {
		t.Error("MissingInputError must not match InsufficientDataError")
	}
	if !strings.Contains(err.Error(), "data/features_accounts.csv") {
		t.Errorf("expected location in message, got %q", err.Error())
	}
}

func TestInsufficientDataError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *InsufficientDataError
		want string
	}{
		{
			name: "with counts",
			err:  &InsufficientDataError{Reason: "feature table has too few rows", Have: 1, Need: 2},
			want: "insufficient data: feature table has too few rows (have 1, need 2)",
		},
		{
			name: "reason only",
			err:  &InsufficientDataError{Reason: `column "ia_std" not present`},
			want: `insufficient data: column "ia_std" not present`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !IsInsufficientData(fmt.Errorf("wrap: %w", tt.err)) {
				t.Error("expected IsInsufficientData to match wrapped error")
			}
		})
	}
}
