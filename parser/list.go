package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// CommentPrefix marks a line of the extension list as a comment
const CommentPrefix = "//"

// ParseList reads extension identifiers, one per line.
// Lines are trimmed; blank lines and comment lines are dropped.
// Duplicates are kept and order is preserved.
func ParseList(r io.Reader) ([]string, error) {
	var items []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, CommentPrefix) {
			continue
		}
		items = append(items, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read extension list: %w", err)
	}

	return items, nil
}

// ReadList opens path and parses it with ParseList
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open extension list: %w", err)
	}
	defer f.Close()

	return ParseList(f)
}
