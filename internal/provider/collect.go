package provider

import (
	"context"
	"strings"
)

// Collect drains a stream, concatenating fragments in arrival order.
// Empty fragments are skipped. onDelta, when non-nil, is called for every
// non-empty fragment before it is appended. The first Delta error aborts
// collection and is returned together with the text gathered so far.
func Collect(ctx context.Context, ch <-chan Delta, onDelta func(string)) (string, error) {
	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			return b.String(), ctx.Err()
		case d, ok := <-ch:
			if !ok {
				// A producer may close early because ctx ended.
				return b.String(), ctx.Err()
			}
			if d.Err != nil {
				return b.String(), d.Err
			}
			if d.Text == "" {
				continue
			}
			if onDelta != nil {
				onDelta(d.Text)
			}
			b.WriteString(d.Text)
		}
	}
}
