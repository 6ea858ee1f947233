package messaging

import (
	"errors"
	"fmt"
)

const (
	// MaxContentBytes is the default upper bound for message content. It
	// keeps a single envelope comfortably inside one text frame.
	MaxContentBytes = 4096
)

var (
	// ErrEmptyContent indicates a message with no content was submitted.
	ErrEmptyContent = errors.New("messaging: empty content")

	// ErrContentTooLarge indicates message content exceeds the size limit.
	ErrContentTooLarge = errors.New("messaging: content too large")
)

// ValidateContent checks message content against the given byte limit.
// A limit of zero or less applies MaxContentBytes.
func ValidateContent(content string, limit int) error {
	if limit <= 0 {
		limit = MaxContentBytes
	}
	if len(content) == 0 {
		return ErrEmptyContent
	}
	if len(content) > limit {
		return fmt.Errorf("%w: %d bytes exceeds limit %d", ErrContentTooLarge, len(content), limit)
	}
	return nil
}
