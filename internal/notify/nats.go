package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

type NATS struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log *zap.Logger
}

// DialNATS connects and makes sure the auction event stream exists.
func DialNATS(ctx context.Context, url string, log *zap.Logger) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("martillo-live"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Accepted bids, lot closings and winner notices",
		Subjects:    []string{"auction.>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream %s: %w", StreamName, err)
	}

	log = log.Named("notify")
	log.Info("stream ready", zap.String("stream", StreamName))
	return &NATS{nc: nc, js: js, log: log}, nil
}

func (n *NATS) Publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	ack, err := n.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	n.log.Debug("published", zap.String("subject", subject), zap.Uint64("seq", ack.Sequence))
	return nil
}

func (n *NATS) Close() error {
	return n.nc.Drain()
}
