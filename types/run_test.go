package types_test

import (
	"testing"

	"github.com/velocitylabs/vcollect/types"
)

func TestFinalStatus(t *testing.T) {
	tests := []struct {
		name                      string
		success, failed, skipped  int
		want                      types.RunStatus
	}{
		{"all succeed", 3, 0, 0, types.StatusSuccess},
		{"mixed failure", 3, 2, 0, types.StatusPartial},
		{"mixed skip", 2, 0, 1, types.StatusPartial},
		{"none succeed", 0, 5, 0, types.StatusFailed},
		{"all skipped", 0, 0, 4, types.StatusFailed},
		{"empty run", 0, 0, 0, types.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := types.FinalStatus(tt.success, tt.failed, tt.skipped)
			if got != tt.want {
				t.Errorf("FinalStatus(%d,%d,%d) = %s, want %s",
					tt.success, tt.failed, tt.skipped, got, tt.want)
			}
		})
	}
}

func TestOutcomeBuckets(t *testing.T) {
	success := types.DeviceOutcome{Success: true}
	skipped := types.DeviceOutcome{Skipped: true, ErrKind: types.ErrKindValidation}
	failed := types.DeviceOutcome{ErrKind: types.ErrKindTimeout}

	if success.Failed() || skipped.Failed() {
		t.Error("success and skipped outcomes must not count as failed")
	}
	if !failed.Failed() {
		t.Error("non-success non-skipped outcome must count as failed")
	}
}
