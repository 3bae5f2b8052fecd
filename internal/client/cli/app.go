package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/formsync/internal/client/client"
	"github.com/dmitrijs2005/formsync/internal/client/config"
	"github.com/dmitrijs2005/formsync/internal/client/connectivity"
	"github.com/dmitrijs2005/formsync/internal/client/services"
	"github.com/dmitrijs2005/formsync/internal/client/shell"
	"github.com/dmitrijs2005/formsync/internal/client/transport"
	"github.com/dmitrijs2005/formsync/internal/clock"
	"github.com/dmitrijs2005/formsync/internal/cryptox"
	"github.com/dmitrijs2005/formsync/internal/logging"
	"golang.org/x/time/rate"
)

const (
	tokenTTL        = 5 * time.Minute
	shutdownTimeout = 5 * time.Second
)

var ErrPassphraseRequired = errors.New("storage encryption is enabled but no passphrase was given")

// connState is the part of connectivity.Monitor the REPL reads.
type connState interface {
	Online() bool
	Mode() connectivity.Mode
}

type App struct {
	config  *config.Config
	log     logging.Logger
	clock   clock.Clock
	service services.SubmissionService
	conn    connState
	monitor *connectivity.Monitor
	cache   *shell.Cache
	reader  *bufio.Reader
	out     io.Writer

	closers []io.Closer
	bg      sync.WaitGroup
	drains  sync.WaitGroup
}

// NewApp opens the stores and builds every component named by c.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	log := logging.NewLogger(c.LogLevel, os.Stderr)
	a := &App{
		config: c,
		log:    log.With("module", "cli"),
		clock:  clock.RealClock{},
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}

	passphrase, err := resolvePassphrase(c, a.out)
	if err != nil {
		return nil, err
	}

	repos, err := client.OpenRepositories(ctx, client.StoreOptions{
		DataDir:     c.DataDir,
		Driver:      c.StoreDriver,
		PostgresDSN: c.PostgresDSN,
		Passphrase:  passphrase,
		Clock:       a.clock,
	})
	cryptox.Wipe(passphrase)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, repos)

	tr, err := newTransport(ctx, c)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create transport: %w", err)
	}

	probe, err := newProbe(c)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create probe: %w", err)
	}
	if cl, ok := probe.(io.Closer); ok {
		a.closers = append(a.closers, cl)
	}

	a.monitor = connectivity.NewMonitor(probe, c.OnlineCheckInterval, log)
	a.conn = a.monitor

	opts := []services.Option{services.WithClock(a.clock)}
	if c.DrainRatePerSecond > 0 {
		opts = append(opts, services.WithRateLimit(rate.NewLimiter(rate.Limit(c.DrainRatePerSecond), 1)))
	}
	a.service = services.NewSubmissionService(repos.Queue, tr, a.monitor, log, opts...)

	if c.AssetOrigin != "" && c.ShellListenAddr != "" {
		var shellOpts []shell.Option
		if len(c.AssetManifest) > 0 {
			shellOpts = append(shellOpts, shell.WithManifest(c.AssetManifest))
		}
		a.cache, err = shell.New(c.AssetOrigin, c.CacheGeneration, repos.Assets, log, shellOpts...)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("create asset cache: %w", err)
		}
	}

	return a, nil
}

// Run starts the background components and blocks in the REPL until the
// user exits or ctx is done.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		a.bg.Wait()
		a.drains.Wait()
		if err := a.Close(); err != nil {
			a.log.Warn(ctx, "close failed", "error", err)
		}
	}()

	printlnFn("Welcome to formsync (type 'help' for commands)")

	a.monitor.OnChange(func(online bool) { a.onConnectivityChange(ctx, online) })
	if a.monitor.Check(ctx) {
		a.drainAsync(ctx)
	} else {
		printlnFn(services.MsgWentOffline)
	}
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		a.monitor.Run(ctx)
	}()

	if a.cache != nil {
		a.bg.Add(1)
		go func() {
			defer a.bg.Done()
			a.serveShell(ctx)
		}()
	}

	runREPL(ctx, a, a.statusLine, a.reader)
}

// Close releases stores and probe connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onConnectivityChange(ctx context.Context, online bool) {
	if !online {
		printlnFn(services.MsgWentOffline)
		return
	}
	printlnFn(services.MsgBackOnline)
	a.drainAsync(ctx)
}

func (a *App) drainAsync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	a.drains.Add(1)
	go func() {
		defer a.drains.Done()

		report, err := a.service.Drain(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error(ctx, "background drain failed", "error", err)
			return
		}
		if n := len(report.Attempts); n > 0 {
			printlnFn(fmt.Sprintf("Sent %d of %d queued submission(s).", report.Count(services.OutcomeDelivered), n))
		}
	}()
}

// serveShell runs the asset cache server until ctx is done and returns only
// after the server has shut down.
func (a *App) serveShell(ctx context.Context) {
	if err := a.cache.Startup(ctx); err != nil {
		a.log.Warn(ctx, "asset cache not refreshed", "error", err)
	}

	srv := &http.Server{
		Addr:              a.config.ShellListenAddr,
		Handler:           a.cache,
		ReadHeaderTimeout: 10 * time.Second,
	}

	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe() }()
	a.log.Info(ctx, "serving application shell", "addr", srv.Addr, "origin", a.config.AssetOrigin)

	select {
	case err := <-served:
		a.log.Error(ctx, "asset cache server stopped", "error", err)
		return
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		a.log.Warn(ctx, "asset cache server shutdown", "error", err)
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Error(ctx, "asset cache server stopped", "error", err)
	}
}

func (a *App) statusLine() string {
	mode := connectivity.ModeUnknown
	if a.conn != nil {
		mode = a.conn.Mode()
	}
	n, err := a.service.Pending(context.Background())
	if err != nil {
		return fmt.Sprintf("(%s)", mode)
	}
	return fmt.Sprintf("(%s, %d queued)", mode, n)
}

func newTransport(ctx context.Context, c *config.Config) (transport.Transport, error) {
	switch c.TransportKind {
	case config.TransportS3:
		return transport.NewS3Transport(ctx, transport.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
			Timeout:      c.SendTimeout,
		})
	case config.TransportHTTP:
		var opts []transport.HTTPOption
		if c.APISecret != "" {
			opts = append(opts, transport.WithTokenSigner(transport.NewTokenSigner([]byte(c.APISecret), tokenTTL)))
		}
		return transport.NewHTTPTransport(c.SubmitEndpoint, c.SendTimeout, opts...), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", config.ErrInvalidConfig, c.TransportKind)
	}
}

func newProbe(c *config.Config) (connectivity.Probe, error) {
	switch c.ProbeKind {
	case config.ProbeGRPC:
		return connectivity.NewGRPCProbe(c.EffectiveProbeTarget(), "")
	case config.ProbeHTTP:
		return &connectivity.HTTPProbe{URL: c.EffectiveProbeTarget()}, nil
	default:
		return nil, fmt.Errorf("%w: unknown probe %q", config.ErrInvalidConfig, c.ProbeKind)
	}
}

// resolvePassphrase returns the configured passphrase, prompting for one when
// encryption is enabled without it. A nil result disables sealing.
func resolvePassphrase(c *config.Config, w io.Writer) ([]byte, error) {
	if c.StoragePassphrase != "" {
		return []byte(c.StoragePassphrase), nil
	}
	if !c.EncryptStorage {
		return nil, nil
	}
	if !stdinIsTerminal() {
		return nil, ErrPassphraseRequired
	}
	pw, err := GetPassword("Storage passphrase: ", w)
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, ErrPassphraseRequired
	}
	return pw, nil
}
