// Package naming derives relation names from database schema names, including
// pluralization and collision handling.
package naming

// Config overrides the inflection of specific words, for table names the inflection
// rules get wrong (for example person -> people, or uncountable nouns like staff).
type Config struct {
	PluralOverrides   map[string]string `mapstructure:"plural_overrides" yaml:"plural_overrides"`
	SingularOverrides map[string]string `mapstructure:"singular_overrides" yaml:"singular_overrides"`
}

// DefaultConfig returns a Config with no overrides.
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   map[string]string{},
		SingularOverrides: map[string]string{},
	}
}
