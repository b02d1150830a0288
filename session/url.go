package session

import "strings"

// NormalizeBaseURL appends a trailing slash if missing — promoted to a
// standalone helper from the original's TusClient::sanitizeUrl so the CLI
// and tests can reuse it without constructing a full session (see
// SPEC_FULL.md §C.2).
func NormalizeBaseURL(url string) string {
	if strings.HasSuffix(url, "/") {
		return url
	}
	return url + "/"
}

// lastPathSegment reduces a Location header to its trailing path segment,
// e.g. "http://host/files/abc123" -> "abc123", per spec.md §4.1's creation
// algorithm.
func lastPathSegment(location string) string {
	location = strings.TrimSuffix(location, "/")
	idx := strings.LastIndex(location, "/")
	if idx < 0 {
		return location
	}
	return location[idx+1:]
}
