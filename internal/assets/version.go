// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package assets

// VersionLength is the number of hex digits in an asset version.
const VersionLength = 8

// IsVersion reports whether v looks like an asset version.
func IsVersion(v string) bool {
	if len(v) != VersionLength {
		return false
	}
	for _, c := range v {
		isDigit := c >= '0' && c <= '9'
		isHexLetter := c >= 'a' && c <= 'f'
		if !isDigit && !isHexLetter {
			return false
		}
	}
	return true
}
