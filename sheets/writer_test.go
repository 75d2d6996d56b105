package sheets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vsix-downloader/models"
)

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://docs.google.com/spreadsheets/d/abc123/edit", "abc123"},
		{"https://docs.google.com/spreadsheets/d/abc123/edit?usp=sharing", "abc123"},
		{"https://docs.google.com/spreadsheets/d/abc123?gid=0", "abc123"},
		{"abc123", "abc123"},
		{"https://example.com/nothing", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := ExtractSpreadsheetID(tt.url); got != tt.want {
				t.Errorf("ExtractSpreadsheetID(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestSanitizeSheetName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Run 2026-01-02 10:11:12", "Run 2026-01-02 10_11_12"},
		{"a/b\\c?d*e[f]", "a_b_c_d_e_f_"},
		{"   ", "Sheet1"},
	}

	for _, tt := range tests {
		if got := sanitizeSheetName(tt.in); got != tt.want {
			t.Errorf("sanitizeSheetName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunSheetName(t *testing.T) {
	started := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	if got := runSheetName(started); got != "Run 2026-03-04 05_06_07" {
		t.Errorf("runSheetName() = %q", got)
	}
}

func TestRunRows(t *testing.T) {
	res := &models.BatchResult{RunID: "run-7", OutputDir: "vsix_files", Total: 2}
	res.Record(models.ItemResult{Item: "x.y", State: models.StateFailed, Attempts: 3, LastError: "timeout", Duration: 2500 * time.Millisecond})
	res.Record(models.ItemResult{Item: "a.b", State: models.StateSucceeded, Attempts: 1, File: "a.b.vsix"})

	rows := runRows(res)

	if len(rows) != 4 {
		t.Fatalf("Expected metadata, header and 2 item rows, got %d rows", len(rows))
	}
	if rows[0][1] != "run-7" || rows[0][5] != 1 || rows[0][7] != 1 {
		t.Errorf("Unexpected metadata row: %v", rows[0])
	}
	if rows[1][0] != "Extension" {
		t.Errorf("Unexpected header row: %v", rows[1])
	}
	// completion order is kept
	if rows[2][0] != "x.y" || rows[2][1] != "failed" || rows[2][5] != "2.5" {
		t.Errorf("Unexpected first item row: %v", rows[2])
	}
	if rows[3][0] != "a.b" || rows[3][3] != "a.b.vsix" {
		t.Errorf("Unexpected second item row: %v", rows[3])
	}
}

func TestReadCredentials(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "sa.json")
	os.WriteFile(valid, []byte(`{"type": "service_account", "project_id": "p"}`), 0600)
	if _, err := readCredentials(valid); err != nil {
		t.Errorf("Expected service account credentials to load, got %v", err)
	}

	wrongType := filepath.Join(dir, "user.json")
	os.WriteFile(wrongType, []byte(`{"type": "authorized_user"}`), 0600)
	if _, err := readCredentials(wrongType); err == nil || !strings.Contains(err.Error(), "service_account") {
		t.Errorf("Expected service account error, got %v", err)
	}

	broken := filepath.Join(dir, "broken.json")
	os.WriteFile(broken, []byte(`{`), 0600)
	if _, err := readCredentials(broken); err == nil {
		t.Error("Expected error for malformed JSON")
	}

	t.Setenv("GOOGLE_SHEETS_CREDENTIALS", "")
	if _, err := readCredentials(""); err == nil {
		t.Error("Expected error when no credentials are configured")
	}
}
