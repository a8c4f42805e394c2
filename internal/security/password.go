package security

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// HashObserver receives timings for every bcrypt operation. observability.Prom implements it.
type HashObserver interface {
	ObserveHash(op string, d time.Duration, err error)
	HashStarted()
	HashFinished()
}

// Hasher runs bcrypt on a bounded number of goroutines so a burst of logins
// cannot monopolise every CPU.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted
	obs  HashObserver

	dummyOnce sync.Once
	dummy     []byte
}

type HasherOption func(*Hasher)

func WithObserver(obs HashObserver) HasherOption {
	return func(h *Hasher) {
		h.obs = obs
	}
}

func NewHasher(cost, concurrency int, opts ...HasherOption) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	h := &Hasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(concurrency)),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// MaxPasswordBytes is bcrypt's input limit. It counts bytes, not runes.
const MaxPasswordBytes = 72

var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// Hash password hashes a plain text password with bcrypt.
func (h *Hasher) Hash(ctx context.Context, plain string) (string, error) {
	if len(plain) > MaxPasswordBytes {
		return "", fmt.Errorf("hash password: %w", ErrPasswordTooLong)
	}

	var digest []byte

	err := h.run(ctx, "hash", func() error {
		var err error
		digest, err = bcrypt.GenerateFromPassword([]byte(plain), h.cost)
		return err
	})

	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(digest), nil
}

// Verify compares a bcrypt digest with a plaintext password. A mismatch is
// reported as false with a nil error.
func (h *Hasher) Verify(ctx context.Context, plain, digest string) (bool, error) {
	err := h.run(ctx, "verify", func() error {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain))
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify password: %w", err)
	}
}

// Equalize spends one comparison against a throwaway digest. Login calls it
// for unknown emails so that path costs the same as a wrong password.
func (h *Hasher) Equalize(ctx context.Context, plain string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("rolegate-equalize"), h.cost)
	})

	_, _ = h.Verify(ctx, plain, string(h.dummy))
}

func (h *Hasher) run(ctx context.Context, op string, fn func() error) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.sem.Release(1)

	if h.obs != nil {
		h.obs.HashStarted()
		defer h.obs.HashFinished()
	}

	start := time.Now()
	err := fn()

	if h.obs != nil {
		// a mismatch is a normal outcome, not an error
		obsErr := err
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			obsErr = nil
		}
		h.obs.ObserveHash(op, time.Since(start), obsErr)
	}

	return err
}
