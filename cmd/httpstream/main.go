package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/adamwoolhether/httpstream"
	"github.com/adamwoolhether/httpstream/client"
	"github.com/adamwoolhether/httpstream/client/reachability"
	"github.com/adamwoolhether/httpstream/client/request"
	"github.com/adamwoolhether/httpstream/internal/config"
	"github.com/adamwoolhether/httpstream/internal/ui"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "config file path (optional, defaults to ~/.config/httpstream/config.toml)")
	envPath := flag.String("env", "", "dotenv file holding "+config.APIKeyEnv+" (optional, defaults to ./.env)")
	checksum := flag.String("sha256", "", "expected hex SHA-256 of the download (single target only)")
	logPath := flag.String("log", "", "write debug logs to this file (optional)")
	plain := flag.Bool("plain", false, "print progress lines instead of the interactive view")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: httpstream [flags] <url or path>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	targets := flag.Args()
	if len(targets) == 0 {
		flag.Usage()
		return 2
	}
	if *checksum != "" && len(targets) != 1 {
		fmt.Fprintln(os.Stderr, "httpstream: -sha256 needs exactly one target")
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, closeLog, err := newLogger(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "httpstream: %v\n", err)
		return 1
	}
	defer closeLog()

	if err := download(ctx, logger, options{
		configPath: *configPath,
		envPath:    *envPath,
		checksum:   *checksum,
		plain:      *plain,
		targets:    targets,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "httpstream: %v\n", err)
		return 1
	}

	return 0
}

type options struct {
	configPath string
	envPath    string
	checksum   string
	plain      bool
	targets    []string
}

var errFailed = errors.New("one or more downloads failed")

func download(ctx context.Context, logger *slog.Logger, opts options) error {
	cfg, err := config.Load(opts.configPath, opts.envPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var checker reachability.Checker
	if cfg.ReachabilityAddress != "" {
		mon, err := reachability.NewMonitor(cfg.ReachabilityAddress, reachability.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("reachability: %w", err)
		}
		mon.Check(ctx)
		if err := mon.Start(ctx); err != nil {
			return fmt.Errorf("reachability: %w", err)
		}
		defer mon.Stop()
		checker = mon
	}

	c, err := httpstream.NewClient(cfg.ClientOptions(logger, checker)...)
	if err != nil {
		return fmt.Errorf("init client: %w", err)
	}
	defer c.CancelAllTasks()

	var dlOpts []client.DownloadOption
	if opts.checksum != "" {
		dlOpts = append(dlOpts, client.WithChecksum(sha256.New(), opts.checksum))
	}

	transfers := make([]ui.Transfer, 0, len(opts.targets))
	for _, target := range opts.targets {
		s, err := start(ctx, c, cfg, target, dlOpts)
		if err != nil {
			return fmt.Errorf("%s: %w", target, err)
		}
		transfers = append(transfers, ui.Transfer{Name: name(target), Events: s.Events()})
	}

	var results []ui.Result
	if opts.plain {
		results = printPlain(ctx, os.Stdout, transfers)
	} else {
		results, err = ui.Run(ctx, transfers, c.CancelAllTasks)
		if err != nil {
			return err
		}
	}

	failed := false
	for _, r := range results {
		if r.Err != nil {
			failed = true
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.Name, r.Err)
			continue
		}
		fmt.Printf("%s -> %s\n", r.Name, r.Location)
	}
	if failed {
		return errFailed
	}

	return nil
}

// start downloads an absolute URL directly, or resolves a path against the
// configured base URL and API key.
func start(ctx context.Context, c *client.Client, cfg config.Config, target string, opts []client.DownloadOption) (*client.Stream[string], error) {
	if u, err := url.Parse(target); err == nil && u.IsAbs() {
		return c.DownloadURL(u, opts...), nil
	}

	if cfg.BaseURL == "" {
		return nil, errors.New("relative target needs base_url in the config")
	}

	req, err := c.Endpoint(ctx, client.Endpoint{
		Environment: client.Environment{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey},
		Path:        target,
		Method:      request.MethodGet,
	})
	if err != nil {
		return nil, err
	}

	return c.Download(req, opts...), nil
}

// printPlain consumes every transfer sequentially, printing progress in
// whole percent steps.
func printPlain(ctx context.Context, w io.Writer, transfers []ui.Transfer) []ui.Result {
	results := make([]ui.Result, len(transfers))

	for i, t := range transfers {
		results[i] = ui.Result{Name: t.Name, Err: context.Canceled}
		last := -10

	events:
		for {
			select {
			case <-ctx.Done():
				return results
			case ev, ok := <-t.Events:
				if !ok {
					break events
				}
				switch ev.Kind {
				case client.KindProgress:
					if pct := int(ev.Fraction * 100); pct/10 != last/10 {
						last = pct
						fmt.Fprintf(w, "%s %3d%%\n", t.Name, pct)
					}
				case client.KindResponse:
					results[i] = ui.Result{Name: t.Name, Location: ev.Payload}
				case client.KindFailure:
					results[i] = ui.Result{Name: t.Name, Err: ev.Err}
				}
			}
		}
	}

	return results
}

func name(target string) string {
	if u, err := url.Parse(target); err == nil && u.Path != "" {
		if base := path.Base(u.Path); base != "/" && base != "." {
			return base
		}
	}
	return target
}

func newLogger(logPath string) (*slog.Logger, func(), error) {
	if logPath == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return logger, func() { f.Close() }, nil
}
