// Package filter provides predicate combinators over parsed VAST documents.
// Every predicate treats a missing or mistyped field as a non-match, never
// an error.
package filter

import (
	"github.com/vastio/vastfetch/internal/parser"
)

// Func adapts a plain predicate to vast.ParseFilter.
type Func func(parsed map[string]any) bool

// Matches applies the predicate.
func (f Func) Matches(parsed map[string]any) bool {
	if f == nil {
		return true
	}
	return f(parsed)
}

// All matches when every given filter matches.
func All(filters ...Func) Func {
	return func(parsed map[string]any) bool {
		for _, f := range filters {
			if !f.Matches(parsed) {
				return false
			}
		}
		return true
	}
}

// MinDuration requires a linear duration of at least seconds.
func MinDuration(seconds int) Func {
	return func(parsed map[string]any) bool {
		d, ok := parsed[parser.KeyDuration].(int)
		return ok && d >= seconds
	}
}

// MaxDuration requires a linear duration of at most seconds.
func MaxDuration(seconds int) Func {
	return func(parsed map[string]any) bool {
		d, ok := parsed[parser.KeyDuration].(int)
		return ok && d > 0 && d <= seconds
	}
}

// HasMediaFiles requires at least one media file.
func HasMediaFiles() Func {
	return func(parsed map[string]any) bool {
		media, ok := parsed[parser.KeyMediaFiles].([]map[string]any)
		return ok && len(media) > 0
	}
}

// RequireMediaType requires at least one media file of the given MIME type.
func RequireMediaType(mimeType string) Func {
	return func(parsed map[string]any) bool {
		media, ok := parsed[parser.KeyMediaFiles].([]map[string]any)
		if !ok {
			return false
		}
		for _, mf := range media {
			if t, ok := mf["type"].(string); ok && t == mimeType {
				return true
			}
		}
		return false
	}
}

// RejectWrappers requires an inline ad.
func RejectWrappers() Func {
	return func(parsed map[string]any) bool {
		wrapper, ok := parsed[parser.KeyWrapper].(bool)
		return ok && !wrapper
	}
}
