package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/engine"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/internal/stats"
	"github.com/rohmanhakim/crawl-engine/internal/statusapi"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run a crawl from the seed URLs until there is nothing left to do.",
	Long: `Run a crawl from the seed URLs until there is nothing left to do.

The first interrupt stops the crawl gracefully: in-flight downloads and
scrapes finish, pending requests are kept in the job directory. A second
interrupt cancels in-flight work.`,
	RunE: func(c *cobra.Command, args []string) error {
		urls, err := parseSeedURLs(seedURLs)
		if err != nil {
			return err
		}
		cfg, err := InitConfigWithError(urls)
		if err != nil {
			return err
		}

		logger, err := NewLogger(cfg.LogLevel(), cfg.LogFormat(), os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		logger.Debug("configuration loaded", "config", cfg.String())

		crawlID := uuid.NewString()
		eng, err := engine.NewEngineWithDeps(cfg, engine.Deps{
			CrawlID:      crawlID,
			MetadataSink: metadata.NewRecorder(crawlID, logger),
		})
		if err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		summary, err := RunWithSignals(c.Context(), eng, cfg.StatusAddr(), logger, sigCh)
		if err != nil {
			return err
		}
		printSummary(c.OutOrStdout(), summary)
		return nil
	},
}

// Runner is the engine surface the crawl command drives.
type Runner interface {
	statusapi.Controller
	Start(ctx context.Context, seeds ...*crawl.Request) error
	Done() <-chan struct{}
	Wait() engine.Summary
}

// RunWithSignals starts eng and serves the status endpoint on statusAddr,
// when set, until the engine stops. The first value on signals stops the
// engine gracefully, any further value forces it.
func RunWithSignals(
	ctx context.Context,
	eng Runner,
	statusAddr string,
	logger *slog.Logger,
	signals <-chan os.Signal,
) (engine.Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	if err := eng.Start(gctx); err != nil {
		return engine.Summary{}, err
	}

	g.Go(func() error {
		<-eng.Done()
		stopServer()
		return nil
	})

	if statusAddr != "" {
		srv := statusapi.NewServer(statusAddr, eng, logger)
		g.Go(func() error {
			if err := srv.Run(serverCtx); err != nil {
				return fmt.Errorf("status api: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		interrupts := 0
		for {
			select {
			case sig := <-signals:
				interrupts++
				force := interrupts > 1
				logger.Info("stopping crawl", "signal", fmt.Sprint(sig), "force", force)
				eng.Stop(force)
			case <-eng.Done():
				return nil
			}
		}
	})

	err := g.Wait()
	summary := eng.Wait()
	return summary, err
}

func printSummary(w io.Writer, s engine.Summary) {
	fmt.Fprintf(w, "crawl %s %s after %s\n", s.CrawlID, s.Reason, s.Duration)
	fmt.Fprintf(w, "  accepted=%d filtered=%d enqueue_failed=%d\n", s.Accepted, s.Filtered, s.EnqueueFailed)
	parts := make([]string, 0, len(stats.Dispositions))
	for _, key := range stats.Dispositions {
		parts = append(parts, fmt.Sprintf("%s=%d", strings.TrimPrefix(key, stats.DispositionPrefix), s.Disposition(key)))
	}
	fmt.Fprintf(w, "  %s\n", strings.Join(parts, " "))
	fmt.Fprintf(w, "  items scraped=%d dropped=%d\n", s.Stats[stats.ItemsScraped], s.Stats[stats.ItemsDropped])
}
