package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"EdgeScan/internal/di"
	"EdgeScan/internal/domain/models"
	"EdgeScan/internal/usecase"
	"EdgeScan/pkg/config"
	xhttp "EdgeScan/pkg/http"

	"github.com/spf13/cobra"
)

func optimizeCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		payloadPath string
		timeout     time.Duration
		quiet       bool
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run one optimization in-process and print the ranking as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			p, err := readPayload(cmd.Context(), payloadPath)
			if err != nil {
				return err
			}

			l, err := di.ProvideLogger(cfg)
			if err != nil {
				return err
			}
			ch, err := di.ProvideClickHouseClient(cfg, l)
			if err != nil {
				return err
			}
			if ch != nil {
				defer ch.Close()
			}
			series := di.ProvideSeriesUseCase(di.ProvideCandleStore(ch, cfg, l), cfg)
			ds, err := series.Dataset(cmd.Context(), p)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			stderr := cmd.ErrOrStderr()
			sink := usecase.EventSinkFunc(func(e models.TaskEvent) {
				if !quiet && e.Type == models.EventProgress && e.Progress != nil {
					fmt.Fprintf(stderr, "%5.1f%% %s %d/%d\n", e.Progress.Percent, e.Progress.Stage, e.Progress.Processed, e.Progress.Total)
				}
			})
			task := usecase.NewOptimizeTask("cli", ds, p, di.ProvideOptimizer(cfg, l, nil), sink)
			snap, err := task.Run(ctx)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), snap); err != nil {
				return err
			}
			if snap.State != usecase.TaskDone {
				return fmt.Errorf("optimization %s: %s", snap.State, snap.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&payloadPath, "payload", "p", "", "optimize payload JSON file ('-' for stdin)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "cancel the run after this long")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

// readPayload decodes, defaults and validates a payload file.
func readPayload(ctx context.Context, path string) (*models.OptimizePayload, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	var p models.OptimizePayload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	if err := xhttp.ValidateStruct(ctx, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return &p, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
