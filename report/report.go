package report

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"vsix-downloader/models"
)

var separator = strings.Repeat("=", 50)

// Sink publishes the outcome of a batch run
type Sink interface {
	Name() string
	Report(ctx context.Context, res *models.BatchResult) error
}

// Console prints the human readable run summary
type Console struct {
	w io.Writer
}

// NewConsole creates a Console sink writing to w
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Name() string { return "console" }

// Report prints success and failure counts, the absolute output location and
// the items that never succeeded
func (c *Console) Report(_ context.Context, res *models.BatchResult) error {
	dir := res.OutputDir
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	fmt.Fprintf(c.w, "\n%s\n", separator)
	fmt.Fprintf(c.w, "Download complete! Success: %d/%d, Failed: %d/%d\n", res.Succeeded, res.Total, res.Failed, res.Total)
	fmt.Fprintf(c.w, "Files saved in: %s\n", dir)
	fmt.Fprintln(c.w, separator)

	if res.Failed == 0 {
		return nil
	}
	fmt.Fprintln(c.w, "Failed extensions:")
	for _, r := range res.Results {
		if r.Succeeded() {
			continue
		}
		fmt.Fprintf(c.w, "  - %s (%d attempts): %s\n", r.Item, r.Attempts, r.LastError)
	}
	return nil
}

// Fanout sends a result to every sink. A failing sink is logged and does not
// stop the others.
type Fanout struct {
	sinks  []Sink
	logger *log.Logger
}

// NewFanout creates a Fanout over sinks
func NewFanout(logger *log.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Fanout{sinks: sinks, logger: logger}
}

// Add appends a sink
func (f *Fanout) Add(s Sink) {
	f.sinks = append(f.sinks, s)
}

// Close releases every sink that holds a connection. Close errors are logged.
func (f *Fanout) Close() {
	for _, s := range f.sinks {
		c, ok := s.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			f.logger.Printf("Warning: Failed to close %s: %v\n", s.Name(), err)
		}
	}
}

// Report returns the number of sinks that failed
func (f *Fanout) Report(ctx context.Context, res *models.BatchResult) int {
	failed := 0
	for _, s := range f.sinks {
		if err := s.Report(ctx, res); err != nil {
			f.logger.Printf("Warning: Failed to report run to %s: %v\n", s.Name(), err)
			failed++
			continue
		}
		f.logger.Printf("Reported run %s to %s\n", res.RunID, s.Name())
	}
	return failed
}
