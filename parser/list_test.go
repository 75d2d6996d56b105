package parser

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"comment and blank line", "ext.one\n// comment\n\next.two\n", []string{"ext.one", "ext.two"}},
		{"empty input", "", nil},
		{"only comments", "// a\n//b\n", nil},
		{"surrounding whitespace", "  ms-python.python  \n\tgolang.go\n", []string{"ms-python.python", "golang.go"}},
		{"indented comment", "   // disabled.ext\nreal.ext\n", []string{"real.ext"}},
		{"crlf line endings", "a.b\r\n\r\nc.d\r\n", []string{"a.b", "c.d"}},
		{"duplicates kept", "a.b\na.b\n", []string{"a.b", "a.b"}},
		{"no trailing newline", "a.b", []string{"a.b"}},
		{"slash inside identifier", "a//b\n", []string{"a//b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseList(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("ParseList() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ParseList() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestReadList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extensions.txt")
	if err := os.WriteFile(path, []byte("ext.one\n// comment\n\next.two\n"), 0644); err != nil {
		t.Fatalf("failed to write list: %v", err)
	}

	got, err := ReadList(path)
	if err != nil {
		t.Fatalf("ReadList() unexpected error: %v", err)
	}
	want := []string{"ext.one", "ext.two"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadList() = %q, want %q", got, want)
	}
}

func TestReadList_MissingFile(t *testing.T) {
	_, err := ReadList(filepath.Join(t.TempDir(), "missing.txt"))
	if err == nil {
		t.Fatal("Expected error for missing file, got nil")
	}
}
