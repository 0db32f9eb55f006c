package seen

import (
	"net/url"
	"strings"
)

func Normalize(value string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(value)))
	return strings.Join(fields, " ")
}

// Key builds the dedup key for a job URL: scheme and host are lowercased,
// the fragment and common tracking parameters are dropped and a trailing
// slash is trimmed. An empty or unparsable URL yields ok=false.
func Key(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if isTrackingParam(key) {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""

	return u.String(), true
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	switch key {
	case "src", "sid", "xp", "px", "ref", "refid", "trackingid", "fbclid", "gclid":
		return true
	}
	return strings.HasPrefix(key, "utm_")
}

// Set is a set of job URL keys scoped to one extraction run. It is not safe
// for concurrent use; each run owns its own Set.
type Set struct {
	keys map[string]struct{}
}

func NewSet() *Set {
	return &Set{keys: map[string]struct{}{}}
}

// Add records rawURL and reports whether it was new. Invalid URLs are never
// added and report false.
func (s *Set) Add(rawURL string) bool {
	key, ok := Key(rawURL)
	if !ok {
		return false
	}
	if _, exists := s.keys[key]; exists {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s *Set) Has(rawURL string) bool {
	key, ok := Key(rawURL)
	if !ok {
		return false
	}
	_, exists := s.keys[key]
	return exists
}

func (s *Set) Len() int {
	return len(s.keys)
}
