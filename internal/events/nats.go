// Package events publishes agent lifecycle events to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	StreamName    = "SOULGARDEN"
	subjectPrefix = "soulgarden"
)

// Subject returns the subject an event is published on:
// soulgarden.agents.<agent id>.<event type>.
func Subject(e domain.Event) string {
	return fmt.Sprintf("%s.agents.%s.%s", subjectPrefix, e.AgentID, e.Type)
}

type NATSPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *zap.Logger
}

// Connect dials NATS and makes sure the event stream exists.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("soulgarden"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{subjectPrefix + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	logger.Info("nats connected", zap.String("url", url), zap.String("stream", StreamName))
	return &NATSPublisher{nc: nc, js: js, logger: logger}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, e domain.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := Subject(e)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe streams events matching filter (a NATS subject pattern, empty for
// all) to handler until ctx is cancelled.
func (p *NATSPublisher) Subscribe(ctx context.Context, filter string, handler func(domain.Event)) error {
	if filter == "" {
		filter = subjectPrefix + ".>"
	}
	consumer, err := p.js.OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{filter},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		var e domain.Event
		if err := json.Unmarshal(msg.Data(), &e); err != nil {
			p.logger.Warn("dropping malformed event", zap.String("subject", msg.Subject()), zap.Error(err))
			return
		}
		handler(e)
	})
	if err != nil {
		return fmt.Errorf("nats consume: %w", err)
	}
	defer cons.Stop()

	<-ctx.Done()
	return nil
}

func (p *NATSPublisher) Close() {
	p.nc.Close()
}

// NoopPublisher drops every event. Used when NATS_URL is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, e domain.Event) error { return nil }
