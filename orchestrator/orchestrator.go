package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"vsix-downloader/models"

	"github.com/google/uuid"
)

// ErrEnvironment is returned by Run when the automation backend cannot start.
// No item is attempted in that case.
var ErrEnvironment = errors.New("environment check failed")

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 5 * time.Second
)

// Downloader performs one download attempt for an item and returns the
// artifact file name
type Downloader interface {
	Download(ctx context.Context, item, outputDir string) (string, error)
}

// EnvironmentChecker reports whether downloads can run at all
type EnvironmentChecker interface {
	CheckEnvironment(ctx context.Context) error
}

// Options configure a batch run
type Options struct {
	OutputDir   string
	Concurrency int
	MaxRetries  int
	BaseDelay   time.Duration // backoff before retry n is BaseDelay*n, 0 means DefaultBaseDelay

	Logger   *log.Logger
	Progress io.Writer // per-item ✓/✗ lines

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Orchestrator runs a bounded pool of per-item retry loops
type Orchestrator struct {
	downloader Downloader
	env        EnvironmentChecker
	opts       Options
}

// New validates opts and fills in defaults
func New(downloader Downloader, env EnvironmentChecker, opts Options) (*Orchestrator, error) {
	if opts.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", opts.Concurrency)
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative, got %d", opts.MaxRetries)
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BaseDelay < 0 {
		return nil, fmt.Errorf("retry base delay must not be negative, got %s", opts.BaseDelay)
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}

	return &Orchestrator{
		downloader: downloader,
		env:        env,
		opts:       opts,
	}, nil
}

// Run checks the environment once, then downloads every item with at most
// Concurrency items in flight. Results are aggregated in completion order.
//
// Cancelling ctx stops dispatching and interrupts backoff waits; items that
// never started are counted as failed. Attempts already running are not
// interrupted.
func (o *Orchestrator) Run(ctx context.Context, items []string) (*models.BatchResult, error) {
	res := &models.BatchResult{
		RunID:     uuid.NewString(),
		OutputDir: o.opts.OutputDir,
		Total:     len(items),
		StartedAt: time.Now(),
	}

	if err := o.env.CheckEnvironment(ctx); err != nil {
		o.opts.Logger.Printf("Environment check failed: %v\n", err)
		return nil, fmt.Errorf("%w: %v", ErrEnvironment, err)
	}

	if err := os.MkdirAll(o.opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	o.opts.Logger.Printf("Starting batch %s: %d items, %d workers, %d retries per item\n",
		res.RunID, len(items), o.opts.Concurrency, o.opts.MaxRetries)

	for r := range o.dispatch(ctx, items) {
		res.Record(r)
		if r.Succeeded() {
			fmt.Fprintf(o.opts.Progress, "✓ Success: %s\n", r.Item)
		} else {
			fmt.Fprintf(o.opts.Progress, "✗ Failed: %s\n", r.Item)
		}
	}

	res.FinishedAt = time.Now()
	o.opts.Logger.Printf("Batch %s finished. Succeeded: %d, Failed: %d\n", res.RunID, res.Succeeded, res.Failed)
	return res, nil
}

// dispatch feeds items to the worker pool and returns the channel of final
// item results. The channel is closed once every item is accounted for.
func (o *Orchestrator) dispatch(ctx context.Context, items []string) <-chan models.ItemResult {
	jobs := make(chan string)
	results := make(chan models.ItemResult)

	workers := o.opts.Concurrency
	if workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				results <- o.processItem(ctx, item)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			if ctx.Err() == nil {
				select {
				case jobs <- item:
					continue
				case <-ctx.Done():
				}
			}
			for _, rest := range items[i:] {
				results <- models.ItemResult{
					Item:      rest,
					State:     models.StateFailed,
					LastError: fmt.Sprintf("not started: %v", ctx.Err()),
				}
			}
			return
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// processItem drives one item from pending to a terminal state
func (o *Orchestrator) processItem(ctx context.Context, item string) models.ItemResult {
	start := time.Now()
	r := models.ItemResult{Item: item, State: models.StatePending}

	// running attempts are never cancelled by the batch
	attemptCtx := context.WithoutCancel(ctx)

	for !r.State.IsTerminal() {
		switch r.State {
		case models.StatePending:
			o.opts.Logger.Printf("Starting download: %s\n", item)
			r.State = models.StateAttempting

		case models.StateAttempting:
			r.Attempts++
			file, err := o.attempt(attemptCtx, item)
			if err == nil {
				r.State = models.StateSucceeded
				r.File = file
				r.LastError = ""
				o.opts.Logger.Printf("Downloaded %s: %s (attempt %d/%d)\n", item, file, r.Attempts, o.opts.MaxRetries)
				break
			}

			r.LastError = err.Error()
			o.opts.Logger.Printf("Download failed: %s (attempt %d/%d): %v\n", item, r.Attempts, o.opts.MaxRetries, err)

			if r.Attempts >= o.opts.MaxRetries {
				r.State = models.StateFailed
				o.opts.Logger.Printf("Giving up on %s after %d attempts\n", item, r.Attempts)
				break
			}

			delay := o.opts.BaseDelay * time.Duration(r.Attempts)
			if err := o.opts.Sleep(ctx, delay); err != nil {
				r.State = models.StateFailed
				r.LastError = fmt.Sprintf("retry aborted: %v (last error: %s)", err, r.LastError)
			}
		}
	}

	r.Duration = time.Since(start)
	return r
}

// attempt calls the downloader and turns a panic into a failed attempt
func (o *Orchestrator) attempt(ctx context.Context, item string) (file string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unexpected panic: %v", rec)
		}
	}()
	return o.downloader.Download(ctx, item, o.opts.OutputDir)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
