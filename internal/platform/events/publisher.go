package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bookmarket/internal/listing"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	ListingPublishedSubject = "listing.published"
	ListingDeletedSubject   = "listing.deleted"
)

// DeletedPayload is the body of a listing.deleted message.
type DeletedPayload struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
}

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher emits listing lifecycle events as JSON over NATS.
type Publisher struct {
	nc     conn
	closer *nats.Conn
	log    *zap.Logger
}

func NewPublisher(url string, connectTimeout time.Duration, log *zap.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("bookmarket-api"),
		nats.Timeout(connectTimeout),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error("nats error", zap.String("subject", subject), zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Info("connected to nats", zap.String("url", nc.ConnectedUrl()))
	return &Publisher{nc: nc, closer: nc, log: log}, nil
}

func (p *Publisher) ListingPublished(_ context.Context, l *listing.Listing) error {
	return p.publish(ListingPublishedSubject, l.ID, l)
}

func (p *Publisher) ListingDeleted(_ context.Context, id, ownerID string) error {
	return p.publish(ListingDeletedSubject, id, DeletedPayload{ID: id, OwnerID: ownerID})
}

func (p *Publisher) publish(subject, listingID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.log.Debug("event published", zap.String("subject", subject), zap.String("listing_id", listingID))
	return nil
}

// Close flushes buffered messages and closes the connection.
func (p *Publisher) Close() {
	if p.closer == nil || p.closer.IsClosed() {
		return
	}
	if err := p.closer.Drain(); err != nil {
		p.log.Error("nats drain failed", zap.Error(err))
		p.closer.Close()
	}
}
