// Package utils holds small helpers shared by the syncnorm packages.
package utils

// NormalizeIdentifier converts a caller-supplied layer name into a valid
// identifier: only letters, digits, and underscores are allowed.
//
// Layer names typically come from model block prefixes and may contain
// separators like "/" or "."; those are replaced with underscores so the
// canonical key form stays unambiguous. If the name starts with a digit, it
// is prefixed with an underscore.
func NormalizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	result := make([]rune, 0, len(name)+1)
	if name[0] >= '0' && name[0] <= '9' {
		result = append(result, '_')
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			result = append(result, r)
		} else {
			result = append(result, '_')
		}
	}
	return string(result)
}
