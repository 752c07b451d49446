package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leroytan/the-website-sub000/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackChain_FirstSuccessWins(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("down")}
	b := &fakeProvider{name: "b", verdict: Verdict{Filtered: true, Confidence: 0.9}}
	c := &fakeProvider{name: "c"}
	obs := &recordingObserver{}

	chain := NewFallbackChain([]Provider{a, b, c}, WithObserver(obs))
	v, err := chain.Classify(context.Background(), "text")
	require.NoError(t, err)

	assert.Equal(t, "b", v.Provider)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
	assert.Zero(t, c.Calls())
	assert.Equal(t, []string{"a"}, obs.failed)
	assert.Equal(t, []string{"b"}, obs.verdicts)
}

func TestFallbackChain_TimeoutFallsThrough(t *testing.T) {
	slow := &fakeProvider{name: "slow", block: true}
	fast := &fakeProvider{name: "fast", verdict: Verdict{Provider: "fast-model"}}

	chain := NewFallbackChain([]Provider{slow, fast}, WithTimeout(20*time.Millisecond))

	start := time.Now()
	v, err := chain.Classify(context.Background(), "text")
	require.NoError(t, err)

	assert.Equal(t, "fast-model", v.Provider)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFallbackChain_AllFail(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	chain := NewFallbackChain([]Provider{
		&fakeProvider{name: "a", err: errA},
		&fakeProvider{name: "b", err: errB},
	})

	_, err := chain.Classify(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrModerationUnavailable)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestFallbackChain_NoProviders(t *testing.T) {
	_, err := NewFallbackChain(nil).Classify(context.Background(), "text")
	assert.ErrorIs(t, err, common.ErrModerationUnavailable)
}

func TestFallbackChain_CancelledContext(t *testing.T) {
	a := &fakeProvider{name: "a"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFallbackChain([]Provider{a}).Classify(ctx, "text")
	assert.ErrorIs(t, err, common.ErrModerationUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, a.Calls())
}

func TestFallbackChain_RandomOrderUsesShuffle(t *testing.T) {
	a := &fakeProvider{name: "a"}
	b := &fakeProvider{name: "b"}

	chain := NewFallbackChain([]Provider{a, b}, WithOrder(OrderRandom))
	chain.shuffle = func(n int, swap func(i, j int)) { swap(0, n-1) }

	v, err := chain.Classify(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "b", v.Provider)
	assert.Zero(t, a.Calls())

	// the configured order itself is untouched
	assert.Equal(t, "a", chain.providers[0].Name())
}

func TestFallbackChain_PriorityOrderIgnoresShuffle(t *testing.T) {
	a := &fakeProvider{name: "a"}
	b := &fakeProvider{name: "b"}

	chain := NewFallbackChain([]Provider{a, b})
	chain.shuffle = func(n int, swap func(i, j int)) { t.Fatal("shuffle called in priority mode") }

	v, err := chain.Classify(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "a", v.Provider)
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("random")
	require.NoError(t, err)
	assert.Equal(t, OrderRandom, o)

	o, err = ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderPriority, o)

	_, err = ParseOrder("round-robin")
	assert.Error(t, err)
}
