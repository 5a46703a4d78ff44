// Package security holds the gate and hygiene helpers of the web surface:
// passcode checks, secret redaction for logs, per-session rate limits and
// the audit trail.
package security

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every secret found by a Redactor.
const RedactPlaceholder = "***REDACTED***"

// minLiteralLen keeps a one-character passcode from shredding every line.
const minLiteralLen = 4

// credentialPatterns are the key formats chatgate can be configured with,
// plus Authorization headers echoed back in provider errors.
var credentialPatterns = []string{
	`sk-ant-[a-zA-Z0-9\-_]{20,}`,        // Anthropic
	`sk-(proj-)?[a-zA-Z0-9\-_]{20,}`,    // OpenAI
	`sk-or-v1-[a-f0-9]{32,}`,            // OpenRouter, via base_url
	`(?i)bearer\s+[a-zA-Z0-9\-_.=]{16,}`, // headers
}

// DefaultPatterns compiles credentialPatterns.
func DefaultPatterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(credentialPatterns))
	for i, p := range credentialPatterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Redactor scrubs secrets from text bound for logs and the audit trail.
// Runtime secrets (passcode, provider keys) are matched literally and
// known key formats by pattern. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
	replacer *strings.Replacer
}

// NewRedactor returns a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern registers an extra secret format.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	r.patterns = append(r.patterns, pattern)
	r.mu.Unlock()
}

// AddLiterals registers secret values. Short values and duplicates are
// skipped.
func (r *Redactor) AddLiterals(secrets ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, s := range secrets {
		if len(s) >= minLiteralLen && !slices.Contains(r.literals, s) {
			r.literals = append(r.literals, s)
			changed = true
		}
	}
	if !changed {
		return
	}
	// Longest first, so a secret that contains another is replaced whole.
	slices.SortFunc(r.literals, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	pairs := make([]string, 0, 2*len(r.literals))
	for _, lit := range r.literals {
		pairs = append(pairs, lit, RedactPlaceholder)
	}
	r.replacer = strings.NewReplacer(pairs...)
}

// Redact returns s with every known secret replaced. Literals go first so
// a pattern match cannot split one.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	r.mu.RLock()
	replacer, patterns := r.replacer, r.patterns
	r.mu.RUnlock()

	if replacer != nil {
		s = replacer.Replace(s)
	}
	for _, p := range patterns {
		s = p.ReplaceAllLiteralString(s, RedactPlaceholder)
	}
	return s
}
