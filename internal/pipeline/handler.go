package pipeline

// Handler is the plugin interface every pipeline position implements (spec
// §4.2 "Plugin interface"). OnRequest may produce a final response,
// short-circuiting the forward phase; returning (nil, nil) means "continue".
// OnResponse always runs during the reverse phase and returns the response
// to pass to the next (outer) plugin. A plugin that only cares about one
// phase leaves the other as the identity, which is exactly what embedding
// Base gives you for free.
type Handler interface {
	// Name identifies the plugin instance for logging and diagnostics.
	Name() string
	OnRequest(ctx *Context) (*Response, error)
	OnResponse(ctx *Context, resp *Response) (*Response, error)
}

// Base provides identity implementations of both phases. Concrete plugins
// embed Base and override only the method(s) they need, following the
// BasePlugin default-no-op pattern used throughout this plugin tree (spec
// §4.2 "A plugin choosing to handle only one phase returns the identity on
// the other").
type Base struct {
	PluginName string
}

func (b *Base) Name() string { return b.PluginName }

func (b *Base) OnRequest(ctx *Context) (*Response, error) {
	return nil, nil
}

func (b *Base) OnResponse(ctx *Context, resp *Response) (*Response, error) {
	return resp, nil
}
