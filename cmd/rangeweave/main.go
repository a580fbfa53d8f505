// Command rangeweave is the server's front door: it owns argument parsing,
// wiring the configuration store, building host pipelines, and running the
// HTTP listener. Everything domain-specific lives under internal/; this
// file's job is purely process lifecycle (spec §6 scopes the CLI
// front-end itself out of the redesign, so this stays thin on purpose).
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/streamspace-dev/rangeweave/internal/config"
	"github.com/streamspace-dev/rangeweave/internal/eventbus"
	"github.com/streamspace-dev/rangeweave/internal/logging"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
	"github.com/streamspace-dev/rangeweave/internal/plugin/configreload"
	"github.com/streamspace-dev/rangeweave/internal/plugin/wsupgrade"
	"github.com/streamspace-dev/rangeweave/internal/router"

	// Built-in plugins self-register via init(); importing for side effects
	// is how the closed built-in set (spec §9 "Dynamic plugin loading")
	// becomes available to the loader without a dlopen/ABI boundary.
	_ "github.com/streamspace-dev/rangeweave/internal/plugin/accesslog"
	_ "github.com/streamspace-dev/rangeweave/internal/plugin/auth"
	_ "github.com/streamspace-dev/rangeweave/internal/plugin/authz"
	_ "github.com/streamspace-dev/rangeweave/internal/plugin/compression"
	_ "github.com/streamspace-dev/rangeweave/internal/plugin/cors"
	_ "github.com/streamspace-dev/rangeweave/internal/plugin/errorplugin"
	_ "github.com/streamspace-dev/rangeweave/internal/plugin/file"
	_ "github.com/streamspace-dev/rangeweave/internal/plugin/health"
	_ "github.com/streamspace-dev/rangeweave/internal/plugin/ratelimit"
	_ "github.com/streamspace-dev/rangeweave/internal/plugin/redirect"
	_ "github.com/streamspace-dev/rangeweave/internal/plugin/selector"
)

var verbose bool

func main() {
	root := &cobra.Command{
		Use:   "rangeweave <config-file>",
		Short: "Serve HTML documents scoped by CSS selectors over a repurposed Range header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level and run in the foreground with human-readable output")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	logging.Initialize(level(), verbose)
	log := logging.Component("main")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	bus := eventbus.New(os.Getenv("RANGEWEAVE_NATS_URL"))
	defer bus.Close()

	store := config.NewStore(cfg, bus)
	configreload.Bind(store)

	watcher := store.WatchFile()
	if watcher != nil {
		defer watcher.Close()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP)
	go func() {
		for range signals {
			log.Info().Msg("SIGHUP received, reloading configuration")
			if err := store.Reload(); err != nil {
				log.Error().Err(err).Msg("configuration reload failed")
			}
		}
	}()

	executor := pipeline.NewExecutor(bus)

	srv := &server{store: store, executor: executor}
	current := store.Current()
	addr := fmt.Sprintf("%s:%s", current.BindAddress, current.BindPort)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("rangeweave listening")
	return httpServer.ListenAndServe()
}

func level() string {
	if verbose {
		return "debug"
	}
	return "info"
}

// server adapts the plugin pipeline to net/http. It rebuilds each host's
// pipeline from the current configuration snapshot on every request rather
// than caching one, so a config reload takes effect immediately without
// any explicit pipeline-invalidation step (spec §8 "Reload is atomic").
type server struct {
	store    *config.Store
	executor *pipeline.Executor
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	current := s.store.Current()
	host := router.Match(current, r.Host)
	if host == nil {
		http.Error(w, "404 not found: no matching host", http.StatusNotFound)
		return
	}

	p, err := plugin.BuildHostPipeline(host)
	if err != nil {
		http.Error(w, "500 internal server error: pipeline build failed", http.StatusInternalServerError)
		return
	}

	body, _ := readBody(r)
	req := &pipeline.Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		RawPath: r.URL.RequestURI(),
		Query:   r.URL.Query(),
		Header:  r.Header,
		Host:    r.Host,
		Body:    body,
		Remote:  r.RemoteAddr,
	}
	ctx := pipeline.NewContext(req, uuid.NewString())
	ctx.Host = host
	ctx.Server = current
	ctx.Set(wsupgrade.ExtraResponseWriter, w)
	ctx.Set(wsupgrade.ExtraRequest, r)

	resp := s.executor.Run(ctx, p)

	if hijacked, _ := ctx.Get(wsupgrade.ExtraHijacked); hijacked == true {
		return
	}

	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	if resp.Status != http.StatusNoContent && resp.Status != http.StatusNotModified {
		w.Write(resp.Body)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, err := r.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}
