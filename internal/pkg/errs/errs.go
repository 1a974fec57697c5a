package errs

import (
	"fmt"
	"strings"

	cr "github.com/cockroachdb/errors"
)

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return cr.Wrapf(err, format, args...)
}

func New(msg string) error {
	return cr.New(msg)
}

func Newf(format string, args ...any) error {
	return cr.Newf(format, args...)
}

// Mark attaches markErr to err so that errors.Is matches either one.
func Mark(err error, markErr error) error {
	if err == nil {
		return markErr
	}
	return cr.WithStackDepth(fmt.Errorf("%w: %w", markErr, err), 1)
}

// WithMark creates a new error carrying msg and marked as markErr.
func WithMark(markErr error, format string, args ...any) error {
	return cr.WrapWithDepthf(1, markErr, format, args...)
}

func ExtractStackLines(err error, maxLines int) []string {
	if err == nil {
		return nil
	}
	s := fmt.Sprintf("%+v", err)
	lines := strings.Split(s, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}

// Combine joins two errors; either may be nil.
func Combine(err, other error) error {
	return cr.CombineErrors(err, other)
}
