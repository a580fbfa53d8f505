// Package httprange implements the selector-on-HTTP protocol primitives
// shared by the selector handler, the file handler, and the selector error
// responses built by internal/apperr:
// parsing "Range: selector=..." and the "#(selector=...)" URL-fragment
// equivalent (spec §4.5, §6), and building the Content-Range/Accept-Ranges
// echo headers.
//
// Standard byte-range Range requests are explicitly not supported (spec
// §9): a Range header not beginning with "selector=" is ignored entirely,
// falling through to ordinary full-resource handling.
package httprange

import (
	"net/url"
	"strings"
)

const (
	selectorPrefix       = "selector="
	fragmentSelectorOpen = "#(selector="
)

// Extract looks for a selector carried either in the Range header or in the
// request target's "#(selector=...)" fragment form, and returns its
// URL-decoded value. ok is false when neither form is present, meaning the
// selector handler must return none and the request falls through to
// non-selector handling (spec §4.5 "Edge cases").
func Extract(rangeHeader, requestTarget string) (selector string, ok bool) {
	if strings.HasPrefix(rangeHeader, selectorPrefix) {
		return decode(rangeHeader[len(selectorPrefix):]), true
	}

	if idx := strings.Index(requestTarget, fragmentSelectorOpen); idx >= 0 {
		rest := requestTarget[idx+len(fragmentSelectorOpen):]
		if close := strings.IndexByte(rest, ')'); close >= 0 {
			return decode(rest[:close]), true
		}
	}

	return "", false
}

func decode(raw string) string {
	if v, err := url.QueryUnescape(raw); err == nil {
		return v
	}
	return raw
}

// ContentRange builds the "Content-Range: selector <selector>" header value
// every selector-scoped response must carry (spec §4.5, §8 invariant: "the
// value equals the request's selector bytes after URL-decoding").
func ContentRange(selector string) string {
	return "selector " + selector
}

// AcceptRanges is the value the file handler's OPTIONS response advertises
// (spec §6).
const AcceptRanges = "selector"
