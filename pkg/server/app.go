// Package server owns the listener process lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	xhttp "RegimeDesk/pkg/http"
	applogger "RegimeDesk/pkg/logger"
)

// StopRequested is the listener.stop reason when the parent context ends
// without a signal.
const StopRequested = "requested"

// Listener is the ingest loop driven by App. *usecase.Ingestor implements it.
type Listener interface {
	Start(ctx context.Context) error
	Tick(ctx context.Context) error
	Stop(reason string) error
	Crash(ctx context.Context, cause error) string
}

// Scheduler calls tick on its cadence until ctx is done.
type Scheduler interface {
	Run(ctx context.Context, tick func(context.Context) error) error
}

// Runner is a background component such as the price stream.
type Runner interface {
	Run(ctx context.Context) error
}

// CrashError is returned by Run after a fatal cycle error was reported.
type CrashError struct {
	Cause      error
	ReportPath string
}

func (e *CrashError) Error() string { return fmt.Sprintf("listener crashed: %v", e.Cause) }

func (e *CrashError) Unwrap() error { return e.Cause }

type signalCause struct{ sig os.Signal }

func (s signalCause) Error() string { return signalName(s.sig) }

// App encapsulates the listener lifecycle.
type App struct {
	listener   Listener
	scheduler  Scheduler
	background []Runner
	httpServer *xhttp.Server
	log        *applogger.Logger
	signals    []os.Signal
}

type Option func(*App)

// WithBackground starts r before the first tick and stops it on shutdown.
func WithBackground(r Runner) Option {
	return func(a *App) {
		if r != nil {
			a.background = append(a.background, r)
		}
	}
}

// WithHTTPServer serves the status API alongside the loop.
func WithHTTPServer(s *xhttp.Server) Option {
	return func(a *App) { a.httpServer = s }
}

func WithLogger(l *applogger.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithSignals replaces the default SIGINT/SIGTERM set. An empty set
// disables signal handling.
func WithSignals(sigs ...os.Signal) Option {
	return func(a *App) { a.signals = sigs }
}

// New creates a new App instance with all dependencies.
func New(listener Listener, scheduler Scheduler, opts ...Option) *App {
	a := &App{
		listener:  listener,
		scheduler: scheduler,
		log:       applogger.Nop(),
		signals:   []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the listener and blocks until a signal, cancellation of ctx or
// a fatal cycle error. A clean shutdown emits listener.stop and returns nil;
// a fatal error is reported through Crash and returned as *CrashError.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if len(a.signals) > 0 {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, a.signals...)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				a.log.Info("shutdown signal received", applogger.String("signal", signalName(sig)))
				cancel(signalCause{sig: sig})
			case <-ctx.Done():
			}
		}()
	}

	if err := a.listener.Start(ctx); err != nil {
		return a.crash(ctx, fmt.Errorf("start: %w", err))
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	done := make(chan struct{}, len(a.background))
	for _, r := range a.background {
		go func(r Runner) {
			defer func() { done <- struct{}{} }()
			if err := r.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("background component stopped", applogger.Error(err))
			}
		}(r)
	}
	defer func() {
		stopBackground()
		for range a.background {
			<-done
		}
	}()

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return a.crash(ctx, err)
		}
		defer func() {
			if err := a.httpServer.Stop(context.WithoutCancel(ctx)); err != nil {
				a.log.Warn("http shutdown error", applogger.Error(err))
			}
		}()
	}

	if err := a.scheduler.Run(ctx, a.listener.Tick); err != nil {
		return a.crash(ctx, err)
	}

	reason := StopRequested
	var sc signalCause
	if errors.As(context.Cause(ctx), &sc) {
		reason = sc.Error()
	}
	if err := a.listener.Stop(reason); err != nil {
		a.log.Warn("stop event append failed", applogger.Error(err))
	}
	a.log.Info("shutdown complete", applogger.String("reason", reason))
	return nil
}

func (a *App) crash(ctx context.Context, cause error) error {
	path := a.listener.Crash(context.WithoutCancel(ctx), cause)
	return &CrashError{Cause: cause, ReportPath: path}
}

func signalName(sig os.Signal) string {
	switch sig {
	case os.Interrupt:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGHUP:
		return "SIGHUP"
	default:
		return sig.String()
	}
}
