// Package config loads the server's self-hosting HTML/microdata
// configuration document (spec §4.1) into typed records, and implements the
// atomic hot-reload snapshot swap spec §4.7 and §9 require.
package config

// ServerConfig is the process-wide configuration, immutable between
// reloads (spec §3). A reload builds an entirely new ServerConfig and swaps
// the pointer; nothing ever mutates one in place.
type ServerConfig struct {
	BindAddress string
	BindPort    string
	ServerRoot  string
	Daemon      DaemonConfig
	Hosts       []*HostConfig
	// Path is the filesystem path this configuration was parsed from, kept
	// so the reload and config-reload plugin can re-parse the same file.
	Path string
}

// DaemonConfig carries optional daemonization settings (spec §6). rangeweave
// itself treats these as opaque pass-through values for the out-of-scope
// daemonization front-end (spec §1 "Out of scope").
type DaemonConfig struct {
	PidFile          string
	User             string
	Group            string
	Umask            string
	Stdout           string
	Stderr           string
	WorkingDirectory string
}

// HostConfig is one virtual host: one or more names, a document root, and
// an ordered pipeline (spec §3 "HostConfig").
type HostConfig struct {
	Names   []string
	Root    string
	Plugins []*PluginInstance

	// AuthRules supplements spec.md with the AuthorizationRule item type
	// : per-principal-or-role allowed-selector sets
	// consumed by the authz plugin.
	AuthRules []*AuthorizationRule

	// Redirects supplements spec.md with the RedirectRule item type,
	// consumed by the redirect plugin.
	Redirects []*RedirectRule

	// Degraded is set when Root did not exist at parse time. The host is
	// still loaded (not a fatal error) but the file handler answers 503
	// until the directory appears, per original_source/'s behavior
	//  supplement).
	Degraded bool

	// IsDefault marks the fallback host used when no Host header matches
	// any configured name (spec §3 "exactly one default (fallback) host or
	// none").
	IsDefault bool
}

// PluginInstance is a reference to a registered plugin implementation plus
// its opaque, possibly-repeated configuration map (spec §3 "PluginInstance").
type PluginInstance struct {
	Library string
	Config  map[string][]string
}

// AuthorizationRule is one row of the selector-subset authorization table
// , spec §9 "Selector-based authorization").
type AuthorizationRule struct {
	// Principal is a user ID or role name this rule applies to.
	Principal string
	// Role, if set, matches any principal carrying this role instead of a
	// specific user ID.
	Role string
	// AllowedSelectors is the set of selectors this principal/role may act
	// on; each one also admits the compound selectors the selector
	// handler's subset relation places under it (e.g. "h1.title" under "h1").
	AllowedSelectors []string
}

// RedirectRule is one row consumed by the redirect plugin.
type RedirectRule struct {
	From string
	To   string
	Code int
}
