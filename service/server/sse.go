package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	natspkg "github.com/daverbj/solana-llm-integration/service/nats"
	"github.com/daverbj/solana-llm-integration/service/solana"
)

const sseKeepalive = 10 * time.Second

// SSEPublisher relays airdrop events from JetStream to Server-Sent Events clients.
// Each connection gets its own ephemeral consumer.
type SSEPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSSEPublisher connects to NATS for streaming.
func NewSSEPublisher(natsURL string, logger *slog.Logger) (*SSEPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("solana-llm-sse"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &SSEPublisher{nc: nc, js: js, logger: logger}, nil
}

// Close drops the NATS connection, ending every open stream.
func (p *SSEPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("SSE publisher closed")
	}
	return nil
}

// subscribe delivers the payload of every new message on subject until ctx ends.
// The channel is never closed; readers stop on ctx.
func (p *SSEPublisher) subscribe(ctx context.Context, subject string) (<-chan []byte, error) {
	cons, err := p.js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for %s: %w", subject, err)
	}

	out := make(chan []byte, 16)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		msg.Ack()
		select {
		case out <- msg.Data():
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", subject, err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return out, nil
}

// sseWriter writes text/event-stream frames and flushes after each one.
type sseWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

// newSSEWriter also lifts the server's write timeout, which would otherwise cut long streams.
func newSSEWriter(w http.ResponseWriter) *sseWriter {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	return &sseWriter{w: w, rc: rc}
}

func (s *sseWriter) event(name string, data []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseWriter) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// relayAirdrops forwards decoded airdrop events from source until source
// closes, ctx ends or a write fails. Undecodable payloads are skipped.
func relayAirdrops(ctx context.Context, sse *sseWriter, source <-chan []byte, keepalive time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sse.comment("keepalive"); err != nil {
				return
			}
		case data, ok := <-source:
			if !ok {
				return
			}
			var event natspkg.AirdropEvent
			if err := json.Unmarshal(data, &event); err != nil {
				logger.WarnContext(ctx, "skipping malformed airdrop event", "error", err)
				continue
			}
			frame, err := json.Marshal(&event)
			if err != nil {
				continue
			}
			if err := sse.event("airdrop", frame); err != nil {
				return
			}
			logger.DebugContext(ctx, "sent airdrop event",
				"address", event.Address,
				"signature", event.Signature,
			)
		}
	}
}

// handleStreamAirdrops streams completed airdrops as SSE. With an {address}
// path value only that wallet's airdrops are sent.
func handleStreamAirdrops(publisher *SSEPublisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, logger)

		subject, scope := natspkg.StreamSubjects, "all"
		if address := r.PathValue("address"); address != "" {
			if _, err := solana.ParseAddress(address); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			subject, scope = natspkg.Subject(address), address
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		sse := newSSEWriter(w)

		source, err := publisher.subscribe(r.Context(), subject)
		if err != nil {
			log.ErrorContext(r.Context(), "failed to subscribe SSE client", "scope", scope, "error", err)
			sse.event("error", []byte(`{"error":"failed to subscribe"}`))
			return
		}

		connected, _ := json.Marshal(map[string]string{"wallet": scope})
		if err := sse.event("connected", connected); err != nil {
			return
		}
		log.DebugContext(r.Context(), "SSE client connected", "scope", scope, "remote_addr", r.RemoteAddr)

		relayAirdrops(r.Context(), sse, source, sseKeepalive, log)
		log.DebugContext(r.Context(), "SSE client disconnected", "scope", scope)
	})
}
