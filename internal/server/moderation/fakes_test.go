package moderation

import (
	"context"
	"sync"
)

type fakeProvider struct {
	name    string
	verdict Verdict
	err     error
	block   bool

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Classify(ctx context.Context, text string) (Verdict, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return Verdict{}, ctx.Err()
	}
	return f.verdict, f.err
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingObserver struct {
	mu       sync.Mutex
	failed   []string
	verdicts []string
}

func (o *recordingObserver) ProviderFailed(p string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, p)
}

func (o *recordingObserver) VerdictReturned(p string, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verdicts = append(o.verdicts, p)
}
