package forge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// Run starts every component and blocks until a shutdown signal
// (SIGINT/SIGTERM), Stop(), or a component failure. Components start
// in spec.md §2's dependency order (registry → election → job/cron/
// workflow/reactor → gateway). On shutdown every control loop is
// canceled, then the HTTP server, job queue, cron runner, workflow
// scheduler, reactor and gateway are stopped, the cluster.Drainer
// marks the node draining, releases leadership and deregisters it, and
// the shutdown hooks run last.
func (a *App) Run() error {
	ctx, cancel := signal.NotifyContext(a.baseCtxOrBackground(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.registry.Register(ctx); err != nil {
		return err
	}

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return a.registry.Run(gctx) })
	for _, elector := range a.electors {
		g.Go(func() error { return elector.Run(gctx) })
	}
	g.Go(func() error { return a.jobs.Run(gctx) })
	g.Go(func() error { return a.cronRunner.Run(gctx) })
	g.Go(func() error { return a.wfScheduler.Run(gctx) })
	g.Go(func() error { return a.reactor.Run(gctx) })
	g.Go(func() error { return a.gateway.Run(gctx) })

	errCh := make(chan error, 1)
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		runCancel()
		return err
	}
	go func() {
		a.log.Info("forge: node starting", "node_id", a.nodeID, "address", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-gctx.Done():
		runErr = g.Wait()
	case <-ctx.Done():
	case <-a.done:
	}

	a.log.Info("forge: shutting down", "node_id", a.nodeID)
	runCancel()
	_ = g.Wait()

	if err := a.shutdown(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Stop triggers graceful shutdown programmatically, for callers that
// need to halt the node from outside the signal path (tests, embedding
// scenarios).
func (a *App) Stop() error {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
	return nil
}

func (a *App) shutdown() error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	if err := a.jobs.Stop(); err != nil {
		errs = append(errs, err)
	}
	a.cronRunner.Stop()
	a.wfScheduler.Stop()
	a.reactor.Stop()
	a.gateway.Stop()

	if err := a.drainer.Shutdown(shutdownCtx, a.shutdownTimeout); err != nil {
		errs = append(errs, err)
	}

	for _, hook := range a.shutdownHooks {
		if err := hook(shutdownCtx); err != nil {
			errs = append(errs, err)
			a.log.Error("forge: shutdown hook failed", "error", err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (a *App) baseCtxOrBackground() context.Context {
	if a.baseCtx != nil {
		return a.baseCtx
	}
	return context.Background()
}
