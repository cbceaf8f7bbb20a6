package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ipotracker/internal/adapters/csvinput"
	"ipotracker/internal/adapters/localstorage"
	"ipotracker/internal/adapters/ziparchive"
	"ipotracker/internal/api"
	"ipotracker/internal/core/domain"
	"ipotracker/internal/log"
	"ipotracker/internal/logparse"
	"ipotracker/internal/service"
)

var errJobUnsuccessful = errors.New("job did not complete")

func doApply(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := checkFormat(flagFormat); err != nil {
		return err
	}
	entities, err := readCSV(flagCSV)
	if err != nil {
		return err
	}

	opts := cfg.Orchestrator()
	if cmd.Flags().Changed("interval") {
		opts.PollInterval = flagInterval
	}
	if cmd.Flags().Changed("timeout") {
		opts.Timeout = flagTimeout
	}

	client := newGitHubClient()
	o := service.NewOrchestrator(client, client, ziparchive.Opener{}, opts)
	defer o.Close()

	updates, cancel := o.Subscribe()
	defer cancel()

	jobID, err := o.Start(ctx, entities)
	if err != nil {
		return err
	}
	ctx = log.ContextAttrs(ctx, log.JobID(jobID))
	slog.InfoContext(ctx, "job started", "accounts", len(entities), "poll_interval", opts.PollInterval, "timeout", opts.Timeout)

	final, err := watch(ctx, o, jobID, updates)
	if err != nil {
		return err
	}

	if flagOutDir != "" && final.State == domain.StateCompleted {
		if err := export(ctx, localstorage.NewLocalStorage(flagOutDir), final); err != nil {
			return err
		}
	}

	if err := render(os.Stdout, flagFormat, newReport(final)); err != nil {
		return err
	}
	if final.State != domain.StateCompleted {
		return fmt.Errorf("%w: %s", errJobUnsuccessful, final.State)
	}
	return nil
}

// watch logs the progress of jobID until it is terminal. An interrupt
// abandons the job.
func watch(ctx context.Context, o *service.Orchestrator, jobID string, updates <-chan domain.Snapshot) (domain.Snapshot, error) {
	var last domain.Snapshot
	for {
		select {
		case <-ctx.Done():
			o.Reset()
			return domain.Snapshot{}, fmt.Errorf("job %s abandoned: %w", jobID, context.Cause(ctx))
		case snap, ok := <-updates:
			if !ok {
				return domain.Snapshot{}, service.ErrClosed
			}
			if snap.JobID != jobID {
				continue
			}
			if snap.State != last.State || snap.Attempts != last.Attempts {
				slog.InfoContext(ctx, "job progress",
					"state", snap.State,
					"attempts", snap.Attempts,
					"status_hint", snap.StatusHint,
					"message", snap.Message,
				)
			}
			last = snap
			if snap.State.Terminal() {
				return snap, nil
			}
		}
	}
}

func export(ctx context.Context, storage *localstorage.LocalStorage, snap domain.Snapshot) error {
	if err := storage.InitJob(ctx, snap.JobID); err != nil {
		return err
	}
	if err := storage.SaveLogs(ctx, snap.JobID, snap.LogLines); err != nil {
		return err
	}
	if err := storage.SaveSummary(ctx, snap.JobID, snap.AccountResults); err != nil {
		return err
	}
	slog.InfoContext(ctx, "results exported", "dir", storage.GetJobPath(snap.JobID))
	return nil
}

func doFetch(cmd *cobra.Command, _ []string) error {
	ctx := log.ContextAttrs(cmd.Context(), log.JobID(flagApplyID))
	if err := checkFormat(flagFormat); err != nil {
		return err
	}

	var entities []domain.Entity
	if flagCSV != "" {
		var err error
		if entities, err = readCSV(flagCSV); err != nil {
			return err
		}
	}

	rec, err := service.FetchLogs(ctx, newGitHubClient(), ziparchive.Opener{}, flagApplyID)
	var notFound *domain.LogNotFoundError
	switch {
	case errors.As(err, &notFound):
		fmt.Fprintln(os.Stdout, notFound.Error())
		return fmt.Errorf("%w: %w", errJobUnsuccessful, err)
	case err != nil:
		return fmt.Errorf("fetching logs of %s (status %d): %w", flagApplyID, domain.StatusHint(err), err)
	}
	slog.DebugContext(ctx, "log extracted", "entry", rec.Entry, "bytes", len(rec.Text))

	lines := logparse.Lines(rec.Text)
	snap := domain.Snapshot{
		JobID:          flagApplyID,
		State:          domain.StateCompleted,
		Attempts:       1,
		LogLines:       lines,
		OverallStatus:  logparse.Classify(lines),
		AccountResults: logparse.ParseSections(lines, entities),
	}
	return render(os.Stdout, flagFormat, newReport(snap))
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cfg.ListenAddr
	if flagAddr != "" {
		addr = flagAddr
	}

	gin.SetMode(cfg.GinMode)
	client := newGitHubClient()
	opener := ziparchive.Opener{}
	o := service.NewOrchestrator(client, client, opener, cfg.Orchestrator())
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(client, client, opener, o, version()).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.InfoContext(ctx, "starting API server", "addr", addr, "mode", cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// closing the session ends the event streams, so Shutdown does not wait on them
		o.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		slog.InfoContext(ctx, "shutting down API server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func readCSV(path string) ([]domain.Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	entities, err := csvinput.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return entities, nil
}
