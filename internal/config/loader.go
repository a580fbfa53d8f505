package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Load parses the microdata HTML document at path into a ServerConfig
// (spec §4.1). A syntactically malformed file or a structurally valid but
// semantically incomplete config (missing port, missing any host) is a
// fatal error, per spec.
func Load(path string) (*ServerConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config: malformed HTML in %s: %w", path, err)
	}

	root := findItem(doc, "ServerConfig")
	if root == nil {
		return nil, fmt.Errorf("config: %s has no itemscope itemtype=\"ServerConfig\"", path)
	}

	cfg, err := parseServerConfig(root)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Path = path

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func validate(cfg *ServerConfig) error {
	if cfg.BindPort == "" {
		return fmt.Errorf("missing server bindPort")
	}
	if len(cfg.Hosts) == 0 {
		return fmt.Errorf("no HostConfig present")
	}

	seenNames := make(map[string]bool)
	defaults := 0
	for _, h := range cfg.Hosts {
		for _, n := range h.Names {
			key := strings.ToLower(n)
			if key == "*" {
				h.IsDefault = true
				continue
			}
			if seenNames[key] {
				return fmt.Errorf("duplicate host name %q", n)
			}
			seenNames[key] = true
		}
		if h.IsDefault {
			defaults++
		}
		if h.Root == "" {
			return fmt.Errorf("host %v missing hostRoot", h.Names)
		}
		if _, err := os.Stat(h.Root); err != nil {
			h.Degraded = true
		}
	}
	if defaults > 1 {
		return fmt.Errorf("more than one default (wildcard) host")
	}
	return nil
}

func parseServerConfig(n *html.Node) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	for _, p := range properties(n) {
		switch p.name {
		case "bindAddress":
			cfg.BindAddress = textValue(p.node)
		case "bindPort":
			cfg.BindPort = textValue(p.node)
		case "serverRoot":
			cfg.ServerRoot = textValue(p.node)
		case "daemonPidFile":
			cfg.Daemon.PidFile = textValue(p.node)
		case "daemonUser":
			cfg.Daemon.User = textValue(p.node)
		case "daemonGroup":
			cfg.Daemon.Group = textValue(p.node)
		case "daemonUmask":
			cfg.Daemon.Umask = textValue(p.node)
		case "daemonStdout":
			cfg.Daemon.Stdout = textValue(p.node)
		case "daemonStderr":
			cfg.Daemon.Stderr = textValue(p.node)
		case "daemonWorkingDirectory":
			cfg.Daemon.WorkingDirectory = textValue(p.node)
		case "host":
			h, err := parseHost(p.node)
			if err != nil {
				return nil, err
			}
			cfg.Hosts = append(cfg.Hosts, h)
		}
	}
	return cfg, nil
}

func parseHost(n *html.Node) (*HostConfig, error) {
	host := &HostConfig{}
	for _, p := range properties(n) {
		switch p.name {
		case "hostname":
			host.Names = append(host.Names, textValue(p.node))
		case "hostRoot":
			host.Root = textValue(p.node)
		case "plugin":
			pi, err := parsePlugin(p.node)
			if err != nil {
				return nil, err
			}
			host.Plugins = append(host.Plugins, pi)
		case "authorizationRule":
			host.AuthRules = append(host.AuthRules, parseAuthRule(p.node))
		case "redirectRule":
			host.Redirects = append(host.Redirects, parseRedirectRule(p.node))
		}
	}
	return host, nil
}

func parsePlugin(n *html.Node) (*PluginInstance, error) {
	pi := &PluginInstance{Config: make(map[string][]string)}
	for _, p := range properties(n) {
		if p.name == "library" {
			pi.Library = textValue(p.node)
			continue
		}
		pi.Config[p.name] = append(pi.Config[p.name], textValue(p.node))
	}
	if pi.Library == "" {
		return nil, fmt.Errorf("plugin instance missing library")
	}
	return pi, nil
}

func parseAuthRule(n *html.Node) *AuthorizationRule {
	r := &AuthorizationRule{}
	for _, p := range properties(n) {
		switch p.name {
		case "principal":
			r.Principal = textValue(p.node)
		case "role":
			r.Role = textValue(p.node)
		case "allowedSelector":
			r.AllowedSelectors = append(r.AllowedSelectors, textValue(p.node))
		}
	}
	return r
}

func parseRedirectRule(n *html.Node) *RedirectRule {
	r := &RedirectRule{Code: 302}
	for _, p := range properties(n) {
		switch p.name {
		case "from":
			r.From = textValue(p.node)
		case "to":
			r.To = textValue(p.node)
		case "code":
			if v, err := strconv.Atoi(textValue(p.node)); err == nil {
				r.Code = v
			}
		}
	}
	return r
}

// --- microdata primitives ---

type prop struct {
	name string
	node *html.Node
}

// properties enumerates the itemprop descendants of n that belong to n's
// own item, stopping at any nested itemscope boundary (that nested element
// is itself reported as a single property — its name and node — the caller
// recurses into it separately to read its own properties).
func properties(n *html.Node) []prop {
	var out []prop
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			name, hasProp := attr(c, "itemprop")
			if hasProp {
				out = append(out, prop{name: name, node: c})
				if _, isScope := attr(c, "itemscope"); isScope {
					continue
				}
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// findItem does a pre-order search for the first itemscope element whose
// itemtype equals itemType.
func findItem(n *html.Node, itemType string) *html.Node {
	if n.Type == html.ElementNode {
		if t, ok := attr(n, "itemtype"); ok && t == itemType {
			if _, isScope := attr(n, "itemscope"); isScope {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findItem(c, itemType); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// textValue returns a microdata property's value following the standard
// element-specific rules (meta/content, a|link/href, img|source/src,
// time/datetime, else trimmed text content).
func textValue(n *html.Node) string {
	switch n.Data {
	case "meta":
		if v, ok := attr(n, "content"); ok {
			return v
		}
	case "a", "link":
		if v, ok := attr(n, "href"); ok {
			return v
		}
	case "img", "source", "audio", "video", "embed", "iframe":
		if v, ok := attr(n, "src"); ok {
			return v
		}
	case "time":
		if v, ok := attr(n, "datetime"); ok {
			return v
		}
	}
	return strings.TrimSpace(textContent(n))
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
