package naming

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// Pluralize returns the plural of word. Configured overrides win over inflection rules
// and are matched without regard to case.
func (n *Namer) Pluralize(word string) string {
	if override, ok := lookupOverride(n.config.PluralOverrides, word); ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize is the inverse of Pluralize.
func (n *Namer) Singularize(word string) string {
	if override, ok := lookupOverride(n.config.SingularOverrides, word); ok {
		return override
	}
	return inflection.Singular(word)
}

func lookupOverride(overrides map[string]string, word string) (string, bool) {
	if v, ok := overrides[word]; ok {
		return v, true
	}
	for k, v := range overrides {
		if strings.EqualFold(k, word) {
			return v, true
		}
	}
	return "", false
}
