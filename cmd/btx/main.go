// Command btx hosts the clinical-records core: it serves the local HTTP API
// and runs backup maintenance from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"btxclinic/internal/adapters/httpapi"
	"btxclinic/internal/blob"
	"btxclinic/internal/config"
	"btxclinic/internal/core"
	"btxclinic/internal/infra/logging"
)

var (
	exitFunc   = os.Exit
	loadConfig = config.Load
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "btx:", err)
		exitFunc(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "btx",
		Usage:     "offline clinical records core",
		Writer:    out,
		ErrWriter: out,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "serve the local HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address (default BTX_HTTP_ADDR)"},
				},
				Action: serveAction,
			},
			{
				Name:  "export",
				Usage: "--out <file> write a backup of the current state",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "backup file; a directory gets the default BTX-Backup name"},
				},
				Action: exportAction,
			},
			{
				Name:  "import",
				Usage: "--in <file> replace the current state with a backup",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "backup file", Required: true},
				},
				Action: importAction,
			},
			{
				Name:  "wipe",
				Usage: "--yes erase every record and attachment",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "confirm the wipe"},
				},
				Action: wipeAction,
			},
			{
				Name:   "summary",
				Usage:  "print record counts as JSON",
				Action: summaryAction,
			},
		},
	}
}

// runtimeEnv is everything a command needs, built from the environment.
type runtimeEnv struct {
	cfg      config.Config
	logger   *logging.Logger
	svc      *core.Service
	registry *prometheus.Registry
	closers  []io.Closer
}

func (r *runtimeEnv) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			r.logger.Warn("close failed", "err", err)
		}
	}
}

func bootstrap(ctx context.Context) (*runtimeEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	env := &runtimeEnv{cfg: cfg, logger: logger}

	state, err := core.OpenStateStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if c, ok := state.(io.Closer); ok {
		env.closers = append(env.closers, c)
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	if c, ok := blobs.(io.Closer); ok {
		env.closers = append(env.closers, c)
	}

	opts := []core.ServiceOption{core.WithLogger(logger)}
	switch cfg.Metrics {
	case config.MetricsExpvar:
		opts = append(opts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")))
	case config.MetricsPrometheus:
		env.registry = prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(env.registry)
		if err != nil {
			env.Close()
			return nil, err
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
	}
	if cfg.TraceFile != "" {
		w := logging.NewLogWriter(cfg.TraceFile)
		if c, ok := w.(io.Closer); ok {
			env.closers = append(env.closers, c)
		}
		opts = append(opts, core.WithTracer(core.NewJSONTracer(w)))
	}
	if cfg.AuditLog {
		opts = append(opts, core.WithAuditRecorder(core.NewLogAuditRecorder(logger)))
	}

	svc, err := core.Open(ctx, state, blobs, opts...)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.svc = svc
	logger.Info("state opened", "state_driver", svc.StateDriver(), "blob_driver", string(svc.BlobDriver()))
	return env, nil
}

func serveAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	addr := c.String("addr")
	if addr == "" {
		addr = env.cfg.HTTPAddr
	}
	opts := httpapi.Options{
		AllowedOrigins: env.cfg.CORSAllowedOrigins,
		Logger:         env.logger,
		Expvar:         env.cfg.Metrics == config.MetricsExpvar,
	}
	if env.registry != nil {
		opts.Gatherer = env.registry
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(env.svc, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		env.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		env.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func exportAction(c *cli.Context) error {
	env, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer env.Close()

	name, body, err := env.svc.ExportJSON(c.Context)
	if err != nil {
		return err
	}
	out := c.String("out")
	switch {
	case out == "":
		out = name
	case isDir(out):
		out = filepath.Join(out, name)
	}
	if err := os.WriteFile(out, body, 0o600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	fmt.Fprintln(c.App.Writer, out)
	return nil
}

func importAction(c *cli.Context) error {
	data, err := os.ReadFile(c.String("in"))
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	env, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer env.Close()

	report, err := env.svc.Import(c.Context, data)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, report)
}

func wipeAction(c *cli.Context) error {
	if !c.Bool("yes") {
		return errors.New("refusing to wipe without --yes")
	}
	env, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer env.Close()
	if err := env.svc.Wipe(c.Context); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "wiped")
	return nil
}

func summaryAction(c *cli.Context) error {
	env, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer env.Close()
	return printJSON(c.App.Writer, env.svc.Summary())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
