package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jargonaut/internal/config"
)

// retentionInterval is how often expired analytics events are deleted.
const retentionInterval = 24 * time.Hour

// Run serves HTTP and drives the session manager, the housekeeping tickers
// and the config watcher until ctx is cancelled or the server fails. It
// returns nil after a clean cancellation.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.sessions.Run(gctx) })
	g.Go(func() error {
		a.housekeeping(gctx)
		return nil
	})
	if a.watcher != nil {
		g.Go(func() error {
			a.watcher.Run(gctx)
			return nil
		})
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
		cancel()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		if runErr != nil {
			slog.Error("http server failed", "err", runErr)
		}
	}
	cancel()
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// housekeeping sweeps inactive sessions, pings live ones, deletes expired
// analytics events and refreshes the transcription glossary. Session
// intervals follow hot reloads.
func (a *App) housekeeping(ctx context.Context) {
	timing := a.timing.Load()
	cleanup := time.NewTicker(timing.CleanupInterval)
	defer cleanup.Stop()
	ping := time.NewTicker(timing.PingInterval)
	defer ping.Stop()
	retention := time.NewTicker(retentionInterval)
	defer retention.Stop()
	glossary := time.NewTicker(a.cfg.Voice.GlossaryRefresh)
	defer glossary.Stop()

	a.runRetention(ctx)
	a.refreshGlossary(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.retime:
			timing = a.timing.Load()
			cleanup.Reset(timing.CleanupInterval)
			ping.Reset(timing.PingInterval)
			slog.Debug("session timers updated",
				"cleanup_interval", timing.CleanupInterval,
				"ping_interval", timing.PingInterval,
			)
		case <-cleanup.C:
			if n := a.sessions.CleanupInactive(ctx, timing.InactiveTimeout); n > 0 {
				slog.Info("inactive sessions removed", "count", n, "timeout", timing.InactiveTimeout)
			}
		case <-ping.C:
			a.sessions.PingAll(ctx)
		case <-retention.C:
			a.runRetention(ctx)
		case <-glossary.C:
			a.refreshGlossary(ctx)
		}
	}
}

func (a *App) runRetention(ctx context.Context) {
	if a.querier == nil {
		return
	}
	days := a.cfg.Analytics.RetentionDays
	n, err := a.querier.Cleanup(ctx, days)
	if err != nil {
		slog.Warn("analytics retention failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("expired analytics events deleted", "count", n, "retention_days", days)
	}
}

func (a *App) refreshGlossary(ctx context.Context) {
	if !a.voice.HasSTT() {
		return
	}
	if err := a.voice.RefreshGlossary(ctx); err != nil {
		slog.Warn("glossary refresh failed", "err", err)
	}
}

// ApplyConfig applies the hot-reloadable differences between old and next.
// Changes that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(old, next *config.Config) {
	d := config.Diff(old, next)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(slogLevel(next.Server.LogLevel))
		slog.Info("log level changed", "level", next.Server.LogLevel)
	}

	if d.TranslationChanged {
		s := a.orchestrator.Settings()
		t := next.Translation
		s.SearchFallbackThreshold = t.SearchFallbackThreshold
		s.MaxTextLength = t.MaxTextLength
		s.Temperature = t.Temperature
		s.MaxTokens = t.MaxTokens
		a.orchestrator.UpdateSettings(s)
		slog.Info("translation settings updated",
			"search_fallback_threshold", t.SearchFallbackThreshold,
			"max_text_length", t.MaxTextLength,
		)
	}

	if d.SessionTimingChanged {
		sc := next.Session
		a.timing.Store(&sc)
		select {
		case a.retime <- struct{}{}:
		default:
		}
	}

	if d.GlossaryChanged {
		a.voice.SetGlossary(next.Voice.Glossary)
		slog.Info("glossary updated", "terms", len(next.Voice.Glossary))
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}
