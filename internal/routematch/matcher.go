// Package routematch implements the gateway's path matching: a route's
// pattern is matched as a prefix of the request path, :param segments
// match any single path segment, the candidate with the longest run of
// leading literal segments wins, and among equally-specific candidates the
// first-registered route wins (§9(c)).
package routematch

import (
	"strings"

	"gatewaycore/internal/domain"
)

// Matcher holds an ordered, immutable snapshot of routes to match against.
// A new Matcher is built whenever the Config Manager's active route set
// changes; Matcher itself never mutates.
type Matcher struct {
	routes   []domain.Route
	segments [][]string
}

// New builds a Matcher over routes, preserving registration order for
// first-registered-wins tie-breaking. Each route's pattern is split into
// segments once here rather than per request, since the pattern is static
// for the Matcher's lifetime.
func New(routes []domain.Route) *Matcher {
	cp := make([]domain.Route, len(routes))
	copy(cp, routes)
	segs := make([][]string, len(cp))
	for i := range cp {
		segs[i] = cp[i].PatternSegments()
	}
	return &Matcher{routes: cp, segments: segs}
}

// Result is a successful match: the route plus the unmatched remainder of
// the path, forwarded to the upstream target.
type Result struct {
	Route     *domain.Route
	Remainder string
}

// Match finds the best route for path+method, or returns (nil, false) if
// none match.
func (m *Matcher) Match(method, path string) (*Result, bool) {
	segments := splitPath(path)

	var best *domain.Route
	var bestLiteralRun = -1
	var bestRemainder string

	for i := range m.routes {
		r := &m.routes[i]
		if !methodAllowed(r.Methods, method) {
			continue
		}
		pattern := m.segments[i]
		run, ok := literalRun(pattern, segments)
		if !ok {
			continue
		}
		if run > bestLiteralRun {
			best = r
			bestLiteralRun = run
			bestRemainder = remainder(segments, len(pattern))
		}
	}
	if best == nil {
		return nil, false
	}
	return &Result{Route: best, Remainder: bestRemainder}, true
}

func methodAllowed(methods []string, method string) bool {
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// literalRun checks that pattern is a prefix of path (each pattern segment
// either a literal equal to the corresponding path segment, or a :param
// matching any single segment) and returns the count of leading literal
// matches, used to rank specificity.
func literalRun(pattern, path []string) (int, bool) {
	if len(pattern) > len(path) {
		return 0, false
	}
	run := 0
	counting := true
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			counting = false
			continue
		}
		if seg != path[i] {
			return 0, false
		}
		if counting {
			run++
		}
	}
	return run, true
}

func remainder(path []string, prefixLen int) string {
	if prefixLen >= len(path) {
		return ""
	}
	return "/" + strings.Join(path[prefixLen:], "/")
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
