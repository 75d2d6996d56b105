package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ArtifactExt is the file extension of a downloaded extension package
const ArtifactExt = ".vsix"

// ErrArtifactNotFound is returned when no artifact for an item appeared in
// the output directory within the polling window
var ErrArtifactNotFound = errors.New("artifact not found")

// FindArtifact looks in dir for a finished artifact whose name contains item,
// case-insensitively. Partial downloads do not carry the .vsix suffix and are
// ignored.
func FindArtifact(dir, item string) (string, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false, fmt.Errorf("failed to list output directory: %w", err)
	}

	needle := strings.ToLower(item)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if strings.HasSuffix(name, ArtifactExt) && strings.Contains(name, needle) {
			return e.Name(), true, nil
		}
	}

	return "", false, nil
}

// WaitForArtifact polls dir every interval, at most checks times, until an
// artifact for item shows up
func WaitForArtifact(ctx context.Context, dir, item string, interval time.Duration, checks int) (string, error) {
	for i := 0; i < checks; i++ {
		name, ok, err := FindArtifact(dir, item)
		if err != nil {
			return "", err
		}
		if ok {
			return name, nil
		}
		if i < checks-1 {
			if err := sleep(ctx, interval); err != nil {
				return "", err
			}
		}
	}

	return "", fmt.Errorf("%w: %s after %d checks", ErrArtifactNotFound, item, checks)
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
