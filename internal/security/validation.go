package security

import (
	"errors"
	"fmt"
)

// DefaultMaxMessageSize bounds one chat message.
const DefaultMaxMessageSize = 64 << 10

// ErrMessageTooLarge is returned for oversized chat input.
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// ValidateMessageSize checks that text does not exceed limit bytes.
// If limit is <= 0, DefaultMaxMessageSize is used.
func ValidateMessageSize(text string, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	if len(text) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(text), limit)
	}
	return nil
}
