package common

import (
	"errors"
	"regexp"
	"strings"
)

const maxSlugLen = 48

var (
	ErrEmptySlug = errors.New("slug cannot be empty")
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify turns free-form input (a hostname, a pod name) into a lowercase,
// hyphen-separated identifier safe to use as a Redis consumer name.
// The fallback is slugified when input yields nothing.
func Slugify(input, fallback string) (string, error) {
	slug := slugify(input)
	if slug == "" {
		slug = slugify(fallback)
	}
	if slug == "" {
		return "", ErrEmptySlug
	}
	return slug, nil
}

func slugify(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	slug := strings.Trim(nonSlugChars.ReplaceAllString(lower, "-"), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return slug
}
