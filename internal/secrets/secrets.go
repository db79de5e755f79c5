package secrets

import (
	"os"
	"strings"
)

// Resolver looks up an optional secret or configuration value. A missing key
// reports ok=false and is distinguishable from an empty value; callers branch
// on presence, never on errors.
type Resolver interface {
	Get(key string) (string, bool)
}

// Static resolves from a fixed map, used for config-file supplied values and
// in tests.
type Static map[string]string

// Get implements Resolver.
func (s Static) Get(key string) (string, bool) {
	value, ok := s[key]
	return value, ok
}

// Env resolves keys from the process environment. Keys are sanitised into
// valid variable names: upper-cased, with every non-alphanumeric rune mapped
// to '_' (so "SLACK_WHALE_ALERT@10" reads SLACK_WHALE_ALERT_10).
type Env struct{}

// Get implements Resolver.
func (Env) Get(key string) (string, bool) {
	return os.LookupEnv(EnvName(key))
}

// EnvName returns the environment variable name used for a secret key.
func EnvName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Layered consults resolvers in order and returns the first hit.
type Layered []Resolver

// Get implements Resolver.
func (l Layered) Get(key string) (string, bool) {
	for _, r := range l {
		if value, ok := r.Get(key); ok {
			return value, ok
		}
	}
	return "", false
}
