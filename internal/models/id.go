package models

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
)

// ArticleID derives a stable identifier from the article URL.
func ArticleID(rawURL string) string {
	hash := sha256.Sum256([]byte(normalizeURL(rawURL)))
	return fmt.Sprintf("%x", hash)[:16]
}

func normalizeURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return trimmed
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String()
}
