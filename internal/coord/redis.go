package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/DoyleJ11/martillo-live/internal/engine"
)

// Releases only when the stored token still matches the caller's.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is the Service shared by every instance of a scaled deployment.
type Redis struct {
	rdb  *redis.Client
	opts Options
}

func NewRedis(rdb *redis.Client, opts Options) *Redis {
	return &Redis{rdb: rdb, opts: opts.withDefaults()}
}

// Dial connects and pings so a bad address is reported at startup.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (r *Redis) acquire(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return Lock{}, false, fmt.Errorf("%w: acquire %s: %v", ErrBackend, key, err)
	}
	if !ok {
		return Lock{}, false, nil
	}
	return Lock{Key: key, Token: token}, true, nil
}

func (r *Redis) release(ctx context.Context, l Lock) error {
	if l.Key == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, r.rdb, []string{l.Key}, l.Token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: release %s: %v", ErrBackend, l.Key, err)
	}
	return nil
}

func (r *Redis) AcquireLotLock(ctx context.Context, lotID string) (Lock, bool, error) {
	return r.acquire(ctx, lotLockKey(lotID), r.opts.LotLockTTL)
}

func (r *Redis) ReleaseLotLock(ctx context.Context, l Lock) error {
	return r.release(ctx, l)
}

func (r *Redis) AcquireAuctionLock(ctx context.Context, auctionID string) (Lock, bool, error) {
	return r.acquire(ctx, auctionLockKey(auctionID), r.opts.AuctionLockTTL)
}

func (r *Redis) ReleaseAuctionLock(ctx context.Context, l Lock) error {
	return r.release(ctx, l)
}

func (r *Redis) TryBidCooldown(ctx context.Context, bidderID, lotID string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, cooldownKey(bidderID, lotID), "1", r.opts.BidCooldown).Result()
	if err != nil {
		return false, fmt.Errorf("%w: cooldown: %v", ErrBackend, err)
	}
	return ok, nil
}

func (r *Redis) SetActiveLot(ctx context.Context, auctionID, lotID string) error {
	var err error
	if lotID == "" {
		err = r.rdb.Del(ctx, activeLotKey(auctionID)).Err()
	} else {
		err = r.rdb.Set(ctx, activeLotKey(auctionID), lotID, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("%w: set active lot: %v", ErrBackend, err)
	}
	return nil
}

func (r *Redis) GetActiveLot(ctx context.Context, auctionID string) (string, error) {
	v, err := r.rdb.Get(ctx, activeLotKey(auctionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: get active lot: %v", ErrBackend, err)
	}
	return v, nil
}

func (r *Redis) SetRunState(ctx context.Context, auctionID string, s engine.AuctionStatus) error {
	if err := r.rdb.Set(ctx, runStateKey(auctionID), string(s), 0).Err(); err != nil {
		return fmt.Errorf("%w: set run state: %v", ErrBackend, err)
	}
	return nil
}

func (r *Redis) GetRunState(ctx context.Context, auctionID string) (engine.AuctionStatus, error) {
	v, err := r.rdb.Get(ctx, runStateKey(auctionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: get run state: %v", ErrBackend, err)
	}
	return engine.AuctionStatus(v), nil
}
