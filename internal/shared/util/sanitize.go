package util

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalidFileName is returned for names that cannot become a key segment.
var ErrInvalidFileName = errors.New("invalid file name")

var separators = strings.NewReplacer("/", "_", "\\", "_")

// SanitizeFileName turns an uploaded or generated name into a single storage
// key segment: separators become underscores and control runes are dropped.
// Names containing ".." are refused outright.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, separators.Replace(strings.TrimSpace(name)))
	if clean == "" {
		return "", ErrInvalidFileName
	}
	return clean, nil
}
