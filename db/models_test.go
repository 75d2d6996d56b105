package db

import (
	"io"
	"testing"
	"time"

	"vsix-downloader/models"
)

// report.Fanout closes sinks through io.Closer
var _ io.Closer = (*DB)(nil)

func TestNewItemRow(t *testing.T) {
	tests := []struct {
		name       string
		result     models.ItemResult
		wantStatus string
		wantFile   bool
		wantError  bool
	}{
		{
			name:       "succeeded",
			result:     models.ItemResult{Item: "a.b", State: models.StateSucceeded, Attempts: 2, File: "a.b-1.0.vsix", Duration: 1500 * time.Millisecond},
			wantStatus: "succeeded",
			wantFile:   true,
		},
		{
			name:       "failed",
			result:     models.ItemResult{Item: "c.d", State: models.StateFailed, Attempts: 3, LastError: "timeout"},
			wantStatus: "failed",
			wantError:  true,
		},
		{
			name:       "never started",
			result:     models.ItemResult{Item: "e.f", State: models.StateFailed, LastError: "not started: context canceled"},
			wantStatus: "failed",
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := newItemRow(4, tt.result)

			if row.Position != 4 || row.Item != tt.result.Item || row.Attempts != tt.result.Attempts {
				t.Errorf("Unexpected row identity: %+v", row)
			}
			if row.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", row.Status, tt.wantStatus)
			}
			if row.File.Valid != tt.wantFile {
				t.Errorf("File.Valid = %v, want %v", row.File.Valid, tt.wantFile)
			}
			if row.LastError.Valid != tt.wantError {
				t.Errorf("LastError.Valid = %v, want %v", row.LastError.Valid, tt.wantError)
			}
			if row.DurationMS != tt.result.Duration.Milliseconds() {
				t.Errorf("DurationMS = %d, want %d", row.DurationMS, tt.result.Duration.Milliseconds())
			}
		})
	}
}

func TestNewDB_EmptyConnString(t *testing.T) {
	if _, err := NewDB(""); err == nil {
		t.Error("Expected error for empty connection string")
	}
}
