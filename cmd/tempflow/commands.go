package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghalamif/tempflow/internal/adapters/journal"
	"github.com/ghalamif/tempflow/internal/app/config"
	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
	"github.com/ghalamif/tempflow/pkg/tempflow"
)

func newSubscribeCommand(gf *globalFlags, extra []tempflow.Option) *cobra.Command {
	return &cobra.Command{
		Use:     "subscribe",
		Aliases: []string{"sub"},
		Short:   "Wait for samples and print them until the sample count is reached",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, gf)
			if err != nil {
				return err
			}
			obs, reg := newObservability(cfg, cmd.ErrOrStderr())
			rs, detach := runStateOnSignals(obs)
			defer detach()

			opts := append([]tempflow.Option{
				tempflow.WithObservability(obs),
				tempflow.WithRegistry(reg),
				tempflow.WithOutput(cmd.OutOrStdout()),
			}, extra...)
			sub, err := tempflow.NewSubscriber(cmd.Context(), cfg, opts...)
			if err != nil {
				return fmt.Errorf("create subscriber: %w", err)
			}
			stats, err := sub.Run(cmd.Context(), rs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "received %d samples in %d cycles (%s)\n", stats.Samples, stats.Cycles, stats.Reason)
			return nil
		},
	}
}

func newPublishCommand(gf *globalFlags, extra []tempflow.Option) *cobra.Command {
	return &cobra.Command{
		Use:     "publish",
		Aliases: []string{"pub"},
		Short:   "Write one sample per publish period until the sample count is reached",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, gf)
			if err != nil {
				return err
			}
			obs, reg := newObservability(cfg, cmd.ErrOrStderr())
			rs, detach := runStateOnSignals(obs)
			defer detach()

			opts := append([]tempflow.Option{
				tempflow.WithObservability(obs),
				tempflow.WithRegistry(reg),
			}, extra...)
			pub, err := tempflow.NewPublisher(cfg, opts...)
			if err != nil {
				return fmt.Errorf("create publisher: %w", err)
			}
			stats, err := pub.Run(cmd.Context(), rs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d samples, %d failed\n", stats.Written, stats.Failed)
			return nil
		},
	}
}

func newValidateCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration without connecting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, gf)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: transport=%s domain=%d topic=%q type=%s\n",
				cfg.Transport, cfg.Domain.ID, cfg.Domain.Topic, cfg.Domain.Type)
			return nil
		},
	}
}

func newReplayCommand(gf *globalFlags) *cobra.Command {
	var from uint64
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Print the records stored in a journal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, gf)
			if err != nil {
				return err
			}
			if cfg.Journal.Dir == "" {
				return fmt.Errorf("journal directory is required (--journal-dir or journal.dir)")
			}
			return replayJournal(cfg, ports.JournalEntryID(from), cmd.OutOrStdout())
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "First journal entry to print")
	return cmd
}

func replayJournal(cfg *config.Config, from ports.JournalEntryID, out io.Writer) error {
	j, err := journal.Open(cfg.Journal.Dir)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	err = j.Iterate(from, func(id ports.JournalEntryID, rec domain.Record) error {
		_, werr := fmt.Fprintf(out, "%d\t%s\t%s\t%d\t%s\n",
			id, rec.ReceivedAt.Format(time.RFC3339Nano), rec.WriterID, rec.Seq, rec.Payload)
		return werr
	})
	if err != nil {
		return err
	}
	st := j.Stats()
	_, err = fmt.Fprintf(out, "entries=%d last_id=%d size_bytes=%d\n", st.Entries, st.LastID, st.SizeBytes)
	return err
}

func newStatsCommand() *cobra.Command {
	var (
		url      string
		interval time.Duration
		once     bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Poll the Prometheus metrics endpoint and print live counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if once {
				return printMetricsSnapshot(cmd.Context(), url, cmd.OutOrStdout())
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Streaming metrics from %s (Ctrl+C to stop)\n", url)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := printMetricsSnapshot(ctx, url, cmd.OutOrStdout()); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "stats error: %v\n", err)
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Refresh interval")
	cmd.Flags().BoolVar(&once, "once", false, "Print a single snapshot and exit")
	return cmd
}

var statsMetrics = []string{
	ports.MetricSamplesRead,
	ports.MetricSamplesWritten,
	ports.MetricWaitTimeouts,
	ports.MetricSourcePending,
	ports.MetricJournalBytes,
}

func printMetricsSnapshot(ctx context.Context, url string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values := make(map[string]float64, len(statsMetrics))
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range statsMetrics {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					values[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "[%s] read=%.0f written=%.0f timeouts=%.0f pending=%.0f journal_bytes=%.0f\n",
		time.Now().Format(time.RFC3339),
		values[ports.MetricSamplesRead],
		values[ports.MetricSamplesWritten],
		values[ports.MetricWaitTimeouts],
		values[ports.MetricSourcePending],
		values[ports.MetricJournalBytes],
	)
	return err
}
