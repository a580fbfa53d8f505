package selector

import "regexp"

// compoundRe matches a single CSS compound selector: an optional tag name
// followed by any number of .class and #id components, e.g. "div.card#hero"
// or ".card.featured". It deliberately does not match combinators,
// attribute selectors, or pseudo-classes — those always fall back to the
// exact-string-equality branch of isAllowed : "the
// documented subset relation [...] is a deliberately narrow syntactic check,
// not general selector-specificity reasoning").
var compoundRe = regexp.MustCompile(`^([a-zA-Z][\w-]*)?((?:[.#][\w-]+)*)$`)
var componentRe = regexp.MustCompile(`[.#][\w-]+`)

type compound struct {
	tag     string
	id      string
	classes []string
}

func parseCompound(s string) (compound, bool) {
	m := compoundRe.FindStringSubmatch(s)
	if m == nil {
		return compound{}, false
	}
	c := compound{tag: m[1]}
	for _, part := range componentRe.FindAllString(m[2], -1) {
		switch part[0] {
		case '#':
			c.id = part[1:]
		case '.':
			c.classes = append(c.classes, part[1:])
		}
	}
	return c, true
}

// isSubsetOf reports whether every component named in allowed also appears
// in s: same tag (if allowed names one), same id (if allowed names one),
// and allowed's classes all present in s's classes. This implements
// "h1.title" being permitted when "h1" is allowed, but not the reverse
// .
func isSubsetOf(s, allowed string) bool {
	sc, ok := parseCompound(s)
	if !ok {
		return false
	}
	ac, ok := parseCompound(allowed)
	if !ok {
		return false
	}
	if ac.tag != "" && ac.tag != sc.tag {
		return false
	}
	if ac.id != "" && ac.id != sc.id {
		return false
	}
	for _, want := range ac.classes {
		if !containsClass(sc.classes, want) {
			return false
		}
	}
	return true
}

func containsClass(classes []string, want string) bool {
	for _, c := range classes {
		if c == want {
			return true
		}
	}
	return false
}

// isAllowed reports whether selector may be acted on given a principal's
// allowed-selector set. A nil set means no restriction was annotated (spec
// §4.5 "Interaction with authorization" — absence of an authz plugin or of
// a matching rule imposes no selector restriction at this layer).
func isAllowed(selector string, allowed []string) bool {
	if allowed == nil {
		return true
	}
	for _, a := range allowed {
		if selector == a || isSubsetOf(selector, a) {
			return true
		}
	}
	return false
}
