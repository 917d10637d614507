// Package horosafe guards the places where caller-supplied names become
// file paths or storage keys: screenshot ids, class and method names, and
// images read back from disk or from a tool call.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// MaxImageBytes caps PNG reads (64 MiB).
const MaxImageBytes int64 = 64 << 20

// ErrPathTraversal is returned when a joined path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrTooLarge is returned by LimitedReadAll when the limit is exceeded.
var ErrTooLarge = errors.New("horosafe: input too large")

// SafePath joins parts under base and fails if the result escapes base.
func SafePath(base string, parts ...string) (string, error) {
	for _, p := range parts {
		if strings.Contains(p, "..") {
			return "", ErrPathTraversal
		}
	}
	root := filepath.Clean(base)
	joined := filepath.Join(append([]string{root}, parts...)...)
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return joined, nil
}

// ValidateIdentifier accepts 1..256 characters of [A-Za-z0-9_.-].
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("horosafe: identifier must not be empty")
	}
	if len(s) > 256 {
		return fmt.Errorf("horosafe: identifier too long (max 256)")
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("horosafe: invalid character %q in identifier %q", r, s)
		}
	}
	return nil
}

// Identifier maps s onto the identifier alphabet, replacing anything else
// with '_'. CSS selectors become file-name-safe this way.
func Identifier(s string) string {
	if s == "" {
		return "_"
	}
	b := []rune(s)
	for i, r := range b {
		if !isIdentChar(r) {
			b[i] = '_'
		}
	}
	if len(b) > 256 {
		b = b[:256]
	}
	return string(b)
}

// LimitedReadAll reads at most maxBytes from r.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
