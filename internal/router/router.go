// Package router implements the host-to-pipeline match (spec §4.4).
package router

import (
	"strings"

	"github.com/streamspace-dev/rangeweave/internal/config"
)

// Match maps a request's Host header to exactly one HostConfig: exact,
// case-insensitive, port-stripped match first; the wildcard "*" default
// host otherwise; nil if neither exists, meaning the caller must return a
// deterministic not-found response without invoking any host pipeline.
func Match(server *config.ServerConfig, hostHeader string) *config.HostConfig {
	host := strings.ToLower(stripPort(hostHeader))

	var fallback *config.HostConfig
	for _, h := range server.Hosts {
		if h.IsDefault {
			fallback = h
			continue
		}
		for _, n := range h.Names {
			if strings.ToLower(n) == host {
				return h
			}
		}
	}
	return fallback
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		// Guard against IPv6 literals like "[::1]:8080" by only stripping
		// when what follows the colon is a plausible port.
		if !strings.Contains(host[i+1:], "]") {
			return host[:i]
		}
	}
	return host
}

// NormalizePath resolves the root-path-vs-index.html Open Question (spec
// §9): "/" is treated as equivalent to "/index.html" for both routing and
// authorization decisions. Every call site that makes a decision keyed on
// the request path must go through this function so the two can never
// disagree.
func NormalizePath(p string) string {
	if p == "" || p == "/" {
		return "/index.html"
	}
	return p
}
