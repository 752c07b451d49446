package moderation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/leroytan/the-website-sub000/internal/common"
	"github.com/leroytan/the-website-sub000/internal/logging"
)

// Provider is an external classifier consulted when the fast path is
// inconclusive.
type Provider interface {
	Name() string
	Classify(ctx context.Context, text string) (Verdict, error)
}

// Order selects how the fallback chain sequences its providers.
type Order int

const (
	// OrderPriority tries providers in the order they were configured.
	OrderPriority Order = iota
	// OrderRandom shuffles providers on every call to spread load.
	OrderRandom
)

// ParseOrder maps "priority" and "random" to an Order.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "priority":
		return OrderPriority, nil
	case "random":
		return OrderRandom, nil
	default:
		return OrderPriority, fmt.Errorf("unknown provider order %q", s)
	}
}

// Observer receives provider outcomes, typically for metrics.
type Observer interface {
	ProviderFailed(provider string)
	VerdictReturned(provider string, filtered bool)
}

type nopObserver struct{}

func (nopObserver) ProviderFailed(string)        {}
func (nopObserver) VerdictReturned(string, bool) {}

// FallbackChain tries providers one by one until one returns a verdict.
// Each attempt is bounded by its own timeout; a timeout counts as a failure.
type FallbackChain struct {
	providers []Provider
	order     Order
	timeout   time.Duration
	log       logging.Logger
	obs       Observer
	shuffle   func(n int, swap func(i, j int))
}

type ChainOption func(*FallbackChain)

func WithOrder(o Order) ChainOption { return func(c *FallbackChain) { c.order = o } }

func WithTimeout(d time.Duration) ChainOption { return func(c *FallbackChain) { c.timeout = d } }

func WithLogger(l logging.Logger) ChainOption { return func(c *FallbackChain) { c.log = l } }

func WithObserver(o Observer) ChainOption { return func(c *FallbackChain) { c.obs = o } }

func NewFallbackChain(providers []Provider, opts ...ChainOption) *FallbackChain {
	c := &FallbackChain{
		providers: providers,
		order:     OrderPriority,
		timeout:   5 * time.Second,
		log:       logging.Nop(),
		obs:       nopObserver{},
		shuffle:   rand.Shuffle,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *FallbackChain) sequence() []Provider {
	seq := make([]Provider, len(c.providers))
	copy(seq, c.providers)
	if c.order == OrderRandom {
		c.shuffle(len(seq), func(i, j int) { seq[i], seq[j] = seq[j], seq[i] })
	}
	return seq
}

// Classify returns the first successful verdict. When every provider fails
// the error wraps common.ErrModerationUnavailable and each provider error.
func (c *FallbackChain) Classify(ctx context.Context, text string) (Verdict, error) {
	var errs []error

	for _, p := range c.sequence() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		v, err := p.Classify(pctx, text)
		cancel()

		if err != nil {
			c.log.Warn(ctx, "moderation provider failed", "provider", p.Name(), "error", err)
			c.obs.ProviderFailed(p.Name())
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}

		if v.Provider == "" {
			v.Provider = p.Name()
		}
		c.obs.VerdictReturned(v.Provider, v.Filtered)
		return v, nil
	}

	if len(errs) == 0 {
		return Verdict{}, common.ErrModerationUnavailable
	}
	return Verdict{}, fmt.Errorf("%w: %w", common.ErrModerationUnavailable, errors.Join(errs...))
}
