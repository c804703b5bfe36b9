// Package kafka holds broker helpers shared by the event producer, the
// consumer and the certctl event tail.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	strutil "certledger/pkg/platform/strings"
)

// ErrNoBrokers is returned when the broker list is empty.
var ErrNoBrokers = errors.New("kafka brokers not configured")

// HealthChecker probes broker reachability with a TCP dial. It answers before
// a client is built, so certctl can fail fast on a wrong --brokers value.
type HealthChecker struct {
	brokers []string
	timeout time.Duration
}

// NewHealthChecker parses a comma-separated broker list.
func NewHealthChecker(brokers string) *HealthChecker {
	return &HealthChecker{
		brokers: strutil.DedupeAndTrim(strings.Split(brokers, ",")),
		timeout: 3 * time.Second,
	}
}

// Check returns nil as soon as one broker accepts a connection.
func (h *HealthChecker) Check(ctx context.Context) error {
	if len(h.brokers) == 0 {
		return ErrNoBrokers
	}
	dialer := net.Dialer{Timeout: h.timeout}
	var errs []error
	for _, broker := range h.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", broker, err))
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka brokers reachable: %w", errors.Join(errs...))
}

// Name labels the check in health reports.
func (h *HealthChecker) Name() string {
	return "kafka"
}
