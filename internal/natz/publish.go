package natz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/uuid/v5"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ngnhng/npymsgpack/api/serde"
)

const (
	ContentTypeHeader = "Content-Type"
	ContentType       = "application/msgpack"
)

type corePublisher interface {
	PublishMsg(m *nats.Msg) error
}

type streamPublisher interface {
	PublishMsg(ctx context.Context, m *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher packs values with a BinarySerde and publishes them on one subject.
// Every message carries a UUIDv7 Nats-Msg-Id, which JetStream uses to drop
// duplicates.
type Publisher struct {
	core    corePublisher
	stream  streamPublisher
	serde   serde.BinarySerde
	subject string
	logger  *slog.Logger
}

type PublisherOption func(*Publisher)

// WithJetStream publishes through JetStream and waits for the stream's ack.
func WithJetStream(js jetstream.JetStream) PublisherOption {
	return func(p *Publisher) {
		p.stream = js
	}
}

func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(conn *Connection, subject string, s serde.BinarySerde, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		core:    conn.NATS(),
		serde:   s,
		subject: subject,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Publish packs v and sends it, returning the message id.
func (p *Publisher) Publish(ctx context.Context, v any) (string, error) {
	if p.subject == "" {
		return "", errors.New("natz: publisher has no subject")
	}
	data, err := p.serde.SerializeBinary(v)
	if err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate message id: %w", err)
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, id.String())
	msg.Header.Set(ContentTypeHeader, ContentType)

	if p.stream != nil {
		ack, err := p.stream.PublishMsg(ctx, msg)
		if err != nil {
			return "", fmt.Errorf("failed to publish JetStream message to subject %s: %w", p.subject, err)
		}
		p.logger.DebugContext(ctx, "published packed message",
			"subject", p.subject, "id", id.String(), "bytes", len(data),
			"stream", ack.Stream, "seq", ack.Sequence, "duplicate", ack.Duplicate)
		return id.String(), nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.core.PublishMsg(msg); err != nil {
		return "", fmt.Errorf("failed to publish message to subject %s: %w", p.subject, err)
	}
	p.logger.DebugContext(ctx, "published packed message",
		"subject", p.subject, "id", id.String(), "bytes", len(data))
	return id.String(), nil
}
