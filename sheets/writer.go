package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"vsix-downloader/models"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Writer publishes batch runs to Google Sheets, one sheet per run
type Writer struct {
	service       *sheets.Service
	spreadsheetID string
}

// NewWriter creates a new Google Sheets writer
func NewWriter(spreadsheetID string, credentialsPath string) (*Writer, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is empty")
	}

	ctx := context.Background()

	credsJSON, err := readCredentials(credentialsPath)
	if err != nil {
		return nil, err
	}

	service, err := sheets.NewService(ctx, option.WithCredentialsJSON(credsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Writer{
		service:       service,
		spreadsheetID: spreadsheetID,
	}, nil
}

// readCredentials loads service account JSON from credentialsPath or, when
// empty, from GOOGLE_SHEETS_CREDENTIALS
func readCredentials(credentialsPath string) ([]byte, error) {
	var credsJSON []byte

	if credentialsPath != "" {
		data, err := os.ReadFile(credentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		credsJSON = data
	} else {
		credsEnv := strings.TrimSpace(os.Getenv("GOOGLE_SHEETS_CREDENTIALS"))
		if credsEnv == "" {
			return nil, fmt.Errorf("credentials not found: GOOGLE_SHEETS_CREDENTIALS environment variable is empty or not set")
		}
		log.Printf("Reading credentials from GOOGLE_SHEETS_CREDENTIALS environment variable (%d bytes)\n", len(credsEnv))
		credsJSON = []byte(credsEnv)
	}

	var creds map[string]interface{}
	if err := json.Unmarshal(credsJSON, &creds); err != nil {
		return nil, fmt.Errorf("invalid credentials JSON (check if JSON is properly formatted): %w", err)
	}

	if creds["type"] != "service_account" {
		return nil, fmt.Errorf("credentials must be a service account JSON file (type: service_account), got type: %v", creds["type"])
	}

	return credsJSON, nil
}

// Name implements the report sink interface
func (w *Writer) Name() string { return "google-sheets" }

// Report implements the report sink interface
func (w *Writer) Report(ctx context.Context, res *models.BatchResult) error {
	_, _, err := w.CreateRunSheet(ctx, res)
	return err
}

// CreateRunSheet adds a sheet at index 0 holding the run summary and one row
// per item. Returns the sheet name and sheet ID (gid).
func (w *Writer) CreateRunSheet(ctx context.Context, res *models.BatchResult) (string, int64, error) {
	sheetName := runSheetName(res.StartedAt)

	batchUpdateRequest := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: sheetName,
						Index: 0,
					},
				},
			},
		},
	}

	batchUpdateResp, err := w.service.Spreadsheets.BatchUpdate(w.spreadsheetID, batchUpdateRequest).Context(ctx).Do()
	if err != nil {
		return "", 0, fmt.Errorf("failed to create sheet: %w", err)
	}

	var sheetID int64
	if len(batchUpdateResp.Replies) > 0 && batchUpdateResp.Replies[0].AddSheet != nil {
		sheetID = batchUpdateResp.Replies[0].AddSheet.Properties.SheetId
	}

	log.Printf("Created sheet '%s' with ID %d\n", sheetName, sheetID)

	range_ := fmt.Sprintf("%s!A1", sheetName)
	valueRange := &sheets.ValueRange{
		Values: runRows(res),
	}

	_, err = w.service.Spreadsheets.Values.Update(w.spreadsheetID, range_, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return "", 0, fmt.Errorf("failed to write to sheet: %w", err)
	}

	log.Printf("Successfully wrote %d item results to sheet '%s'\n", len(res.Results), sheetName)
	return sheetName, sheetID, nil
}

// runSheetName names the sheet after the run start time
func runSheetName(started time.Time) string {
	name := sanitizeSheetName("Run " + started.Format("2006-01-02 15:04:05"))
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}

// runRows builds the metadata row, the header and one row per item in
// completion order
func runRows(res *models.BatchResult) [][]interface{} {
	values := [][]interface{}{
		{"Run", res.RunID, "Output", res.OutputDir, "Succeeded", res.Succeeded, "Failed", res.Failed, "Total", res.Total},
		{"Extension", "Status", "Attempts", "File", "Error", "Duration (s)"},
	}

	for _, r := range res.Results {
		values = append(values, []interface{}{
			r.Item,
			r.State.String(),
			r.Attempts,
			r.File,
			r.LastError,
			fmt.Sprintf("%.1f", r.Duration.Seconds()),
		})
	}
	return values
}

// sanitizeSheetName removes invalid characters from sheet name
func sanitizeSheetName(name string) string {
	// Google Sheets sheet names cannot contain: / \ ? * [ ] :
	invalidChars := []string{"/", "\\", "?", "*", "[", "]", ":"}
	result := name
	for _, char := range invalidChars {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	if result == "" {
		result = "Sheet1"
	}
	return result
}

// ExtractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL.
// A value without /d/ is returned as is, so a bare ID works too.
func ExtractSpreadsheetID(url string) string {
	// https://docs.google.com/spreadsheets/d/SPREADSHEET_ID/edit?usp=sharing
	parts := strings.Split(url, "/d/")
	if len(parts) < 2 {
		if strings.Contains(url, "/") {
			return ""
		}
		return strings.TrimSpace(url)
	}

	idPart := parts[1]
	if idx := strings.Index(idPart, "/"); idx != -1 {
		idPart = idPart[:idx]
	}
	if idx := strings.Index(idPart, "?"); idx != -1 {
		idPart = idPart[:idx]
	}

	return strings.TrimSpace(idPart)
}
