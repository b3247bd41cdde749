// Package redislock guards a display with a Redis lease so that two
// runners never drive the same screen at once.
//
// A lease is a key set with SET NX PX holding the owner's token. While
// held it is refreshed in the background; release and refresh compare
// the token first so a runner can never delete or extend a lease that
// expired and was taken by someone else.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/sleepgrind/internal/infrastructure/config"
)

var (
	// ErrLocked is returned when the lease is held by another owner for
	// longer than the caller was willing to wait.
	ErrLocked = errors.New("redislock: display is locked")

	// ErrConnectionFailed is returned when Redis cannot be reached.
	ErrConnectionFailed = errors.New("redislock: connection failed")
)

const (
	// DefaultKey is used when no key is configured.
	DefaultKey = "sleepgrind:display"

	// DefaultTTL is the lease expiry when none is configured.
	DefaultTTL = 30 * time.Second

	pollInterval = 100 * time.Millisecond
	pingTimeout  = 5 * time.Second
)

var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// Logger defines the logging interface used by the Locker.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Locker hands out leases on one key.
//
// Thread Safety: a Locker is safe for concurrent use.
type Locker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	wait   time.Duration
	logger Logger
	owned  bool
}

// Connect creates a client from cfg, pings it and returns a Locker that
// owns the client.
//
// Parameters:
//   - ctx: Bounds the initial ping
//   - cfg: Redis address, lock key, lease TTL and acquire wait
//
// Returns:
//   - *Locker: Locker ready to Acquire; Close releases the client
//   - error: If the Redis server cannot be reached
func Connect(ctx context.Context, cfg config.LockConfig) (*Locker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	l := New(client, cfg.Key, cfg.TTL, cfg.Wait)
	l.owned = true
	return l, nil
}

// New returns a Locker on key using an existing client. A zero wait means
// Acquire blocks until the lease is free or ctx is done.
func New(client *redis.Client, key string, ttl, wait time.Duration) *Locker {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{
		client: client,
		key:    key,
		ttl:    ttl,
		wait:   wait,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used for refresh failures.
func (l *Locker) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Key returns the Redis key guarding the display.
func (l *Locker) Key() string {
	return l.key
}

// Holder returns the token of the current lease owner, or "" if free.
func (l *Locker) Holder(ctx context.Context) (string, error) {
	v, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading lock holder: %w", err)
	}
	return v, nil
}

// Acquire takes the lease for token, polling while another owner holds it.
//
// Parameters:
//   - ctx: Cancels the wait
//   - token: Unique owner value stored under the key
//
// Returns:
//   - *Lease: held lease; call Release when done
//   - error: ErrLocked if the configured wait elapsed, ctx.Err() if ctx
//     ended first, or a Redis error
func (l *Locker) Acquire(ctx context.Context, token string) (*Lease, error) {
	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, l.key, token, l.ttl).Result()
		switch {
		case err == nil && ok:
			return l.newLease(token), nil
		case err != nil && waitCtx.Err() == nil:
			return nil, fmt.Errorf("acquiring %s: %w", l.key, err)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			holder, _ := l.Holder(ctx)
			return nil, fmt.Errorf("%w: held by %q after waiting %v", ErrLocked, holder, l.wait)
		case <-ticker.C:
		}
	}
}

// Close closes the Redis client if Connect created it.
func (l *Locker) Close() error {
	if !l.owned {
		return nil
	}
	return l.client.Close()
}

func (l *Locker) newLease(token string) *Lease {
	ctx, cancel := context.WithCancel(context.Background())
	lease := &Lease{
		locker: l,
		token:  token,
		stop:   cancel,
		done:   make(chan struct{}),
		lost:   make(chan struct{}),
	}
	go lease.refresh(ctx)
	return lease
}

// Lease is a held lock.
type Lease struct {
	locker *Locker
	token  string

	stop     context.CancelFunc
	done     chan struct{}
	lost     chan struct{}
	lostOnce sync.Once
	release  sync.Once
}

// Token returns the owner token stored in Redis.
func (le *Lease) Token() string {
	return le.token
}

// Lost is closed if the lease expired or was taken over while held.
func (le *Lease) Lost() <-chan struct{} {
	return le.lost
}

// Release stops refreshing and deletes the key if it is still ours.
// Calling Release more than once is safe.
//
// Returns:
//   - error: nil if released or already lost, or a Redis error
func (le *Lease) Release(ctx context.Context) error {
	var err error
	le.release.Do(func() {
		le.stop()
		<-le.done
		err = releaseScript.Run(ctx, le.locker.client, []string{le.locker.key}, le.token).Err()
		if err != nil {
			err = fmt.Errorf("releasing %s: %w", le.locker.key, err)
		}
	})
	return err
}

// refresh extends the lease every third of its TTL until stopped.
func (le *Lease) refresh(ctx context.Context) {
	defer close(le.done)

	l := le.locker
	ticker := time.NewTicker(max(l.ttl/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := refreshScript.Run(ctx, l.client, []string{l.key}, le.token, l.ttl.Milliseconds()).Int()
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			l.logger.Warn("display lock refresh failed", "key", l.key, "error", err)
		case n == 0:
			l.logger.Warn("display lock lost", "key", l.key, "token", le.token)
			le.lostOnce.Do(func() { close(le.lost) })
			return
		}
	}
}
