package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"certledger/internal/credential/events"
	"certledger/internal/platform/kafka"
	"certledger/internal/platform/kafka/consumer"
)

var (
	eventBrokers   string
	eventTopic     string
	eventGroup     string
	eventFromStart bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the credential event stream",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print credential events as they are published",
	Args:  cobra.NoArgs,
	RunE:  runEventsTail,
}

func init() {
	eventsTailCmd.Flags().StringVar(&eventBrokers, "brokers", os.Getenv("KAFKA_BROKERS"), "Kafka brokers (default: from KAFKA_BROKERS env)")
	eventsTailCmd.Flags().StringVar(&eventTopic, "topic", envOr("KAFKA_CREDENTIAL_TOPIC", "credential-events"), "Credential event topic")
	eventsTailCmd.Flags().StringVar(&eventGroup, "group", "", "Consumer group (default: a throwaway group)")
	eventsTailCmd.Flags().BoolVar(&eventFromStart, "from-start", false, "Replay the topic from the earliest offset")

	eventsCmd.AddCommand(eventsTailCmd)
}

func runEventsTail(cmd *cobra.Command, _ []string) error {
	group := eventGroup
	if group == "" {
		group = "certctl-" + uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Fail fast instead of letting the consumer retry an unreachable cluster.
	if err := kafka.NewHealthChecker(eventBrokers).Check(ctx); err != nil {
		return err
	}

	c, err := consumer.New(consumer.Config{
		Brokers:   eventBrokers,
		GroupID:   group,
		Topics:    []string{eventTopic},
		FromStart: eventFromStart,
	}, eventPrinter(cmd.OutOrStdout()), slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn})))
	if err != nil {
		return err
	}

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// eventPrinter renders one line per event, or one document per event in
// json/yaml mode. Undecodable payloads are reported and skipped.
func eventPrinter(w io.Writer) consumer.Handler {
	return consumer.HandlerFunc(func(_ context.Context, msg *consumer.Message) error {
		e, err := events.Decode(msg.Value)
		if err != nil {
			fmt.Fprintf(w, "skipping offset %d/%d: %v\n", msg.Partition, msg.Offset, err)
			return nil
		}
		if structured() {
			return printOutput(w, e)
		}
		fmt.Fprintf(w, "%s  %-22s %-24s %-8s %s\n",
			e.OccurredAt.Format(time.RFC3339), e.Type, e.Code, e.Status, orDash(e.TxHash))
		return nil
	})
}
