package coord

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/engine"
)

// Fallback wraps a Service so that read lookups survive a backend outage.
// Lock and cooldown calls pass straight through and keep failing closed.
type Fallback struct {
	Service
	log *zap.Logger

	mu        sync.Mutex
	activeLot map[string]string
	runState  map[string]engine.AuctionStatus
}

func WithFallback(inner Service, log *zap.Logger) *Fallback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fallback{
		Service:   inner,
		log:       log.Named("coord"),
		activeLot: map[string]string{},
		runState:  map[string]engine.AuctionStatus{},
	}
}

func (f *Fallback) SetActiveLot(ctx context.Context, auctionID, lotID string) error {
	if err := f.Service.SetActiveLot(ctx, auctionID, lotID); err != nil {
		return err
	}
	f.mu.Lock()
	f.activeLot[auctionID] = lotID
	f.mu.Unlock()
	return nil
}

func (f *Fallback) GetActiveLot(ctx context.Context, auctionID string) (string, error) {
	v, err := f.Service.GetActiveLot(ctx, auctionID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		cached := f.activeLot[auctionID]
		f.log.Warn("active lot lookup failed, using local cache",
			zap.String("auction", auctionID), zap.String("cached", cached), zap.Error(err))
		return cached, nil
	}
	f.activeLot[auctionID] = v
	return v, nil
}

func (f *Fallback) SetRunState(ctx context.Context, auctionID string, s engine.AuctionStatus) error {
	if err := f.Service.SetRunState(ctx, auctionID, s); err != nil {
		return err
	}
	f.mu.Lock()
	f.runState[auctionID] = s
	f.mu.Unlock()
	return nil
}

func (f *Fallback) GetRunState(ctx context.Context, auctionID string) (engine.AuctionStatus, error) {
	v, err := f.Service.GetRunState(ctx, auctionID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		cached, ok := f.runState[auctionID]
		if !ok {
			cached = RunStateUnknown
		}
		f.log.Warn("run state lookup failed, using local cache",
			zap.String("auction", auctionID), zap.String("cached", string(cached)), zap.Error(err))
		return cached, nil
	}
	if v != "" {
		f.runState[auctionID] = v
	}
	return v, nil
}
