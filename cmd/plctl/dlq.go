package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/palletline-systems/palletline-stack/internal/event"
	"github.com/palletline-systems/palletline-stack/internal/messaging"
	natsbroker "github.com/palletline-systems/palletline-stack/internal/messaging/nats"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Dead-letter stream inspection",
}

var dlqPeekLimit int

var dlqPeekCmd = &cobra.Command{
	Use:   "peek",
	Short: "Show parked messages without consuming them",
	RunE: func(cmd *cobra.Command, args []string) error {
		js, err := natsbroker.NewJetStreamClient(natsbroker.Config{
			URL:           cfg.NATS.URL,
			Name:          "plctl",
			MaxReconnects: 1,
			ReconnectWait: time.Second,
			Timeout:       5 * time.Second,
		})
		if err != nil {
			return err
		}
		defer js.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		msgs, err := js.Peek(ctx, messaging.StreamDeadLetter, dlqPeekLimit)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("dead-letter stream is empty")
			return nil
		}

		for i, msg := range msgs {
			fmt.Printf("--- message %d ---\n", i+1)
			fmt.Printf("origin:  %s\n", msg.Header["x-original-subject"])
			fmt.Printf("reason:  %s\n", msg.Header["x-death-reason"])
			fmt.Printf("retries: %s\n", msg.Header[messaging.HeaderRetryCount])
			if env, err := event.Decode(msg.Data); err == nil {
				fmt.Printf("event:   %s %s (tenant %s)\n", env.EventType, env.EventID, env.TenantID)
			} else {
				fmt.Printf("payload: %d bytes (not an envelope)\n", len(msg.Data))
			}
		}
		return nil
	},
}

func init() {
	dlqPeekCmd.Flags().IntVar(&dlqPeekLimit, "limit", 10, "maximum messages to show")
	dlqCmd.AddCommand(dlqPeekCmd)
}
