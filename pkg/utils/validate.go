package utils

import (
	"fmt"
	"net/url"
	"regexp"
)

var hexHashRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// IsValidBlockHash reports whether hash is exactly 64 lower-case hex
// characters.
func IsValidBlockHash(hash string) bool {
	return hexHashRegex.MatchString(hash)
}

// IsValidTxID reports whether txid is exactly 64 lower-case hex characters.
func IsValidTxID(txid string) bool {
	return hexHashRegex.MatchString(txid)
}

// TruncateString shortens s to at most maxLen runes, appending "..." whenever
// truncation actually occurs (even if the result would otherwise look
// complete).
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// ParseURL parses rawURL and rejects anything but http/https URLs with a
// host, since url.Parse alone accepts schemeless or hostless strings.
func ParseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, Wrap(err, "parse url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url has no host")
	}
	return u, nil
}
