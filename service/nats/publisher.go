package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/daverbj/solana-llm-integration/service/metrics"
)

// Publisher defines the interface for publishing airdrop events to NATS.
type Publisher interface {
	// PublishAirdrop publishes a single airdrop event to JetStream.
	// The event is published to the subject "airdrops.{address}".
	PublishAirdrop(ctx context.Context, event *AirdropEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes airdrop events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for airdrops.
	StreamName = "AIRDROPS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "airdrops.*"

	// StreamRetention is how long messages are retained.
	StreamRetention = 7 * 24 * time.Hour

	// DuplicateWindow is how long a signature is remembered for deduplication.
	DuplicateWindow = 10 * time.Minute
)

// Subject returns the subject airdrop events for address are published on.
func Subject(address string) string {
	return "airdrops." + address
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("solana-llm-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates or updates the AIRDROPS stream. The duplicate window
// drops a repeated publish of the same signature, which happens when the
// record activity is retried.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Confirmed devnet airdrops",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Duplicates:  DuplicateWindow,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", StreamName, err)
	}

	info := stream.CachedInfo()
	p.logger.Debug("JetStream stream ready",
		"stream", StreamName,
		"messages", info.State.Msgs,
	)
	return nil
}

// PublishAirdrop publishes a single airdrop event.
func (p *JetStreamPublisher) PublishAirdrop(ctx context.Context, event *AirdropEvent) error {
	subject := Subject(event.Address)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal airdrop event: %w", err)
	}

	start := time.Now()
	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.Signature))
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(StreamSubjects, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish airdrop event: %w", err)
	}

	p.logger.DebugContext(ctx, "published airdrop event",
		"subject", subject,
		"signature", event.Signature,
		"sequence", ack.Sequence,
		"duplicate", ack.Duplicate,
	)
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
