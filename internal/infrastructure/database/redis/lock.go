package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

var ErrLockNotHeld = errors.New(errors.ErrCodeConflict, "lock not held by this owner")

var mutexUnlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var mutexExtendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// LockOption configures a Locker.
type LockOption func(*Locker)

// WithWatchdog keeps held locks alive by extending them every ttl/3 until
// they are released.
func WithWatchdog(enabled bool) LockOption {
	return func(l *Locker) { l.watchdog = enabled }
}

// WithLockLogger sets the logger.
func WithLockLogger(log logging.Logger) LockOption {
	return func(l *Locker) {
		if log != nil {
			l.logger = log
		}
	}
}

// Locker grants SET NX PX locks. It implements the application Locker so
// periodic jobs run on one worker replica at a time.
type Locker struct {
	client   *Client
	logger   logging.Logger
	watchdog bool
}

var _ app.Locker = (*Locker)(nil)

// NewLocker builds a Locker over client.
func NewLocker(client *Client, opts ...LockOption) *Locker {
	l := &Locker{client: client, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryLock makes one attempt to take key for ttl.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (app.Lock, bool, error) {
	m := &mutex{
		client: l.client,
		key:    l.client.Key("lock:" + key),
		value:  uuid.New().String(),
		ttl:    ttl,
		logger: l.logger,
	}
	ok, err := l.client.SetNX(ctx, m.key, m.value, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock").WithDetailf("key=%s", key)
	}
	if !ok {
		return nil, false, nil
	}
	if l.watchdog && ttl >= 3*time.Millisecond {
		m.startWatchdog(ttl / 3)
	}
	return m, true, nil
}

// mutex is one held lock.
type mutex struct {
	client *Client
	key    string
	value  string
	ttl    time.Duration
	logger logging.Logger

	once           sync.Once
	watchdogCancel context.CancelFunc
	watchdogDone   chan struct{}
}

// Unlock releases the lock if this owner still holds it. It returns
// ErrLockNotHeld when the lock expired or was taken over. Only the first call
// talks to Redis.
func (m *mutex) Unlock(ctx context.Context) error {
	var err error
	m.once.Do(func() {
		m.stopWatchdog()
		var res int64
		res, err = mutexUnlockScript.Run(ctx, m.client.GetUnderlyingClient(), []string{m.key}, m.value).Int64()
		if err != nil {
			err = errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock")
			return
		}
		if res == 0 {
			m.logger.Warn("lock expired before release", logging.String("key", m.key))
			err = ErrLockNotHeld.WithDetailf("key=%s", m.key)
		}
	})
	return err
}

// Extend resets the expiry to ttl when still held.
func (m *mutex) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := mutexExtendScript.Run(ctx, m.client.GetUnderlyingClient(), []string{m.key}, m.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (m *mutex) startWatchdog(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	m.watchdogCancel = cancel
	m.watchdogDone = make(chan struct{})
	go runWatchdog(ctx, m.Extend, interval, m.ttl, m.logger, m.watchdogDone)
}

func (m *mutex) stopWatchdog() {
	if m.watchdogCancel != nil {
		m.watchdogCancel()
		<-m.watchdogDone
		m.watchdogCancel = nil
	}
}

func runWatchdog(ctx context.Context, extendFn func(context.Context, time.Duration) (bool, error), interval time.Duration, ttl time.Duration, log logging.Logger, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := extendFn(ctx, ttl)
			if err != nil {
				if ctx.Err() == nil {
					log.Error("Watchdog failed to extend lock", logging.Err(err))
				}
				return
			}
			if !ok {
				log.Warn("Watchdog lost lock")
				return
			}
		}
	}
}

//Personal.AI order the ending
