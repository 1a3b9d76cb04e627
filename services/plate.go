package services

import "strings"

// CanonicalPlate normalizes plate text for equality comparisons:
// uppercase, separators stripped. Duplicate attempt keys and event
// vehicle dedup both depend on this form.
func CanonicalPlate(plate string) string {
	var b strings.Builder
	b.Grow(len(plate))
	for _, r := range strings.ToUpper(strings.TrimSpace(plate)) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}
