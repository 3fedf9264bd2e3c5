// Package placeholder substitutes {{ key }} and { key } tokens in template text with applicant data.
package placeholder

import (
	"regexp"
	"strings"

	"hiring-notifications/internal/models"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}|\{\s*([A-Za-z0-9_.-]+)\s*\}`)

// Resolver resolves tokens against an applicant: direct field first, then a dotted
// path into the submission payload, then the configured aliases.
type Resolver struct {
	aliases map[string]string
}

type Option func(*Resolver)

// WithAliases maps placeholder keys to another field name or payload path.
func WithAliases(aliases map[string]string) Option {
	return func(r *Resolver) {
		if len(aliases) == 0 {
			return
		}
		r.aliases = make(map[string]string, len(aliases))
		for k, v := range aliases {
			key := NormalizeKey(k)
			target := NormalizeKey(v)
			if key != "" && target != "" {
				r.aliases[key] = target
			}
		}
	}
}

func New(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve is New().Resolve.
func Resolve(text string, applicant *models.Applicant) string {
	return New().Resolve(text, applicant)
}

// Resolve replaces every resolvable token in text. Tokens whose key cannot be
// resolved, or resolves to null, are left byte-for-byte as they were.
func (r *Resolver) Resolve(text string, applicant *models.Applicant) string {
	if applicant == nil || !strings.Contains(text, "{") {
		return text
	}

	lookup := r.lookupFor(applicant)
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		value, ok := lookup(tokenKey(token))
		if !ok {
			return token
		}
		return value
	})
}

func (r *Resolver) lookupFor(applicant *models.Applicant) func(string) (string, bool) {
	var (
		payload models.Value
		parsed  bool
	)
	direct := func(key string) (string, bool) {
		if v, ok := applicant.Field(key); ok {
			return v, true
		}
		if !parsed {
			payload = applicant.Payload()
			parsed = true
		}
		if v, ok := payload.Lookup(key); ok {
			return v.String(), true
		}
		return "", false
	}

	return func(key string) (string, bool) {
		if v, ok := direct(key); ok {
			return v, true
		}
		if target, ok := r.aliases[key]; ok && target != key {
			return direct(target)
		}
		return "", false
	}
}

// Keys lists the distinct placeholder keys in text, in order of first appearance.
func Keys(text string) []string {
	matches := tokenPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		k := tokenKey(m)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// NormalizeKey strips braces and whitespace from a stored placeholder key,
// so "{{ firstName }}", "{firstName}" and "firstName" are the same key.
func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimLeft(key, "{")
	key = strings.TrimRight(key, "}")
	return strings.TrimSpace(key)
}

func tokenKey(token string) string {
	sub := tokenPattern.FindStringSubmatch(token)
	if len(sub) < 3 {
		return NormalizeKey(token)
	}
	if sub[1] != "" {
		return sub[1]
	}
	return sub[2]
}
