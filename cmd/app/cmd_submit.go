package main

import (
	"context"
	"fmt"
	"time"

	"EdgeScan/internal/di"
	"EdgeScan/internal/handler/intake"
	"EdgeScan/pkg/config"
	"EdgeScan/pkg/queue"

	"github.com/spf13/cobra"
)

func submitCmd(load func() (*config.Config, error)) *cobra.Command {
	var payloadPath string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Enqueue an optimization request for a running server (Redis queue or Kafka)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			p, err := readPayload(cmd.Context(), payloadPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			switch {
			case cfg.Queue.Enabled:
				rc, err := di.ProvideRedisCache(cfg)
				if err != nil {
					return err
				}
				defer rc.Close()
				l, err := di.ProvideLogger(cfg)
				if err != nil {
					return err
				}
				q := queue.NewRedisQueue(l, queue.QueueConfig{}, rc.Client(), queue.ModeProducerOnly, queue.WithKeyPrefix(cfg.Queue.Prefix))
				if err := q.Start(); err != nil {
					return err
				}
				defer q.Stop(context.Background())
				id, err := q.Enqueue(ctx, intake.JobType, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", id)
			case cfg.Kafka.Enabled && cfg.Kafka.RequestsTopic != "":
				producer, err := di.ProvideKafkaProducer(cfg)
				if err != nil {
					return err
				}
				defer producer.Close()
				if err := producer.Publish(ctx, cfg.Kafka.RequestsTopic, nil, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published to %s\n", cfg.Kafka.RequestsTopic)
			default:
				return fmt.Errorf("no request intake configured: enable queue or set kafka.requests_topic")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&payloadPath, "payload", "p", "", "optimize payload JSON file ('-' for stdin)")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}
