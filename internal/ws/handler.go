// Package ws is the websocket transport. Each connection gets a reader loop
// feeding the coordinator and a writer goroutine draining its outbox.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/coordinator"
	"github.com/DoyleJ11/martillo-live/internal/identity"
)

type Options struct {
	// OriginPatterns lists extra allowed Origin hosts, e.g. "localhost:*".
	OriginPatterns []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 20 * time.Second
	}
	return o
}

func Handler(co *coordinator.Coordinator, opts Options, log *zap.Logger) http.HandlerFunc {
	opts = opts.withDefaults()
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		id := identity.FromRequest(r)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept", zap.Error(err))
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// evict runs on the room goroutine, so it only signals.
		var evicted atomic.Bool
		s := coordinator.NewSession(uuid.NewString(), id, func() {
			evicted.Store(true)
			cancel()
		})
		clog := log.With(zap.String("conn", s.ID), zap.String("user", id.UserID))
		clog.Debug("connected")

		defer func() {
			co.Disconnect(s)
			if evicted.Load() {
				conn.Close(websocket.StatusPolicyViolation, "too slow")
				clog.Info("evicted")
				return
			}
			conn.Close(websocket.StatusNormalClosure, "bye")
			clog.Debug("disconnected")
		}()

		go writeLoop(ctx, cancel, conn, s, opts, clog)

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						clog.Debug("read", zap.Error(err))
					}
				}
				return
			}
			co.Receive(ctx, s, data)
		}
	}
}

func writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, s *coordinator.Session, opts Options, log *zap.Logger) {
	defer cancel()
	ping := time.NewTicker(opts.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case frame := <-s.Outbox():
			if frame == nil {
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, frame)
			wcancel()
			if err != nil {
				log.Debug("write", zap.Error(err))
				return
			}

		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("ping", zap.Error(err))
				return
			}
		}
	}
}
