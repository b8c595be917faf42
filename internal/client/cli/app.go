package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
	"github.com/dmitrijs2005/tacticallink/internal/client/config"
	"github.com/dmitrijs2005/tacticallink/internal/client/models"
	"github.com/dmitrijs2005/tacticallink/internal/client/poller"
	"github.com/dmitrijs2005/tacticallink/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tacticallink/internal/client/services"
	"github.com/dmitrijs2005/tacticallink/internal/clock"
	"github.com/dmitrijs2005/tacticallink/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const pingTimeout = 3 * time.Second

type App struct {
	config    *config.Config
	log       logging.Logger
	clock     clock.Clock
	db        *sql.DB
	http      *client.HTTPClient
	session   *services.SessionManager
	coord     *services.Coordinator
	scheduler *poller.Scheduler
	reader    *bufio.Reader

	outMu sync.Mutex
	out   io.Writer

	modeMu sync.Mutex
	Mode   Mode
}

// NewApp opens the local database and builds the client stack on top of it.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.New(c.LogLevel, c.LogFormat, os.Stderr)

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	a, err := newApp(c, db, log, clock.Real(), os.Stdin, os.Stdout)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func newApp(c *config.Config, db *sql.DB, log logging.Logger, clk clock.Clock, in io.Reader, out io.Writer) (*App, error) {
	httpClient, err := client.NewHTTPClient(c.ServerURL,
		client.WithTimeout(c.RequestTimeout),
		client.WithLogger(log),
		client.WithBreaker(c.BreakerFailures, c.BreakerTimeout),
	)
	if err != nil {
		return nil, err
	}

	session := services.NewSessionManager(httpClient, metadata.NewCredentialStore(db),
		services.WithSessionClock(clk),
		services.WithSessionLogger(log),
	)
	httpClient.UseCredentials(session)

	a := &App{
		config:  c,
		log:     log,
		clock:   clk,
		db:      db,
		http:    httpClient,
		session: session,
		reader:  bufio.NewReader(in),
		out:     out,
	}

	a.scheduler = poller.NewScheduler(
		poller.WithClock(clk),
		poller.WithGate(session.Authenticated),
		poller.WithLogger(log),
		poller.WithMetrics(poller.NewMetrics("tacticallink")),
		poller.WithErrorHandler(a.pollFailed),
	)

	a.coord = services.NewCoordinator(services.CoordinatorDeps{
		Session: session,
		Conversations: services.NewConversationStore(httpClient,
			services.WithStoreClock(clk),
			services.WithStoreLogger(log),
			services.WithSelf(session.Identity),
		),
		Directory: services.NewDirectoryTracker(httpClient,
			services.WithDirectoryLogger(log),
			services.WithDirectorySelf(session.Identity),
		),
		Threat:    services.NewThreatMonitor(httpClient, clk),
		Admin:     services.NewAdminMonitor(httpClient),
		Scheduler: a.scheduler,
		Periods:   poller.PeriodsFromConfig(c.Poll),
		Logger:    log,
	})
	session.OnPhaseChange(a.phaseChanged)

	return a, nil
}

// Shutdown stops polling and releases the database.
func (a *App) Shutdown() error {
	a.scheduler.Close()
	return a.db.Close()
}

func (a *App) Run(ctx context.Context) error {
	defer a.Shutdown()
	return a.Root(ctx)
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, args...)
}

func (a *App) mode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.Mode
}

func (a *App) setMode(mode Mode) {
	a.modeMu.Lock()
	changed := a.Mode != mode
	a.Mode = mode
	a.modeMu.Unlock()

	if changed {
		a.log.Info(context.Background(), fmt.Sprintf("Switched to %s mode", mode))
	}
}

func (a *App) isLoggedIn() bool {
	return a.session.Authenticated()
}

// StartOnlineStatusWatcher pings the backend every interval and flips Mode
// between online and offline. It returns when ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := a.http.Ping(ctx)
	cancel()

	if err != nil {
		a.setMode(ModeOffline)
	} else {
		a.setMode(ModeOnline)
	}
}

// watchEvents prints inbox arrivals and threat warnings as they come in.
func (a *App) watchEvents(ctx context.Context) {
	for {
		select {
		case m := <-a.coord.Incoming():
			a.printf("\n[new] %s: %s\n", a.senderName(m), m.Content)
		case w := <-a.coord.Conversations.Warnings():
			a.printf("\n[warning] message %s scored %.0f (%s)\n", w.MessageID, w.Score, w.Level)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) phaseChanged(_, to models.Phase) {
	if to == models.PhaseExpired {
		a.println("Session expired, please log in again.")
	}
}

func (a *App) pollFailed(ch poller.Channel, err error) {
	a.log.Warn(context.Background(), "poll failed", "channel", ch, "error", client.Reason(err))
}
