package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchit2000/invoice-parsing-llms/internal/common"
)

// fakeProvider returns scripted responses in order, then repeats the last.
type fakeProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeProvider) Name() string { return "fake-model" }

func (f *fakeProvider) Generate(ctx context.Context, prompt string, imagePaths []string) (string, Usage, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	if err := f.errs[i]; err != nil {
		return "", Usage{}, err
	}
	return f.responses[i], Usage{PromptTokens: 100, CompletionTokens: 20}, nil
}

func TestExtractSucceedsFirstAttempt(t *testing.T) {
	p := &fakeProvider{
		responses: []string{`{"invoice_number":"INV-1","total":150.0,"vendor":"Acme"}`},
		errs:      []error{nil},
	}
	e := NewExtractor(p, nil, WithSleep(func(ctx context.Context, d time.Duration) error {
		t.Fatal("no sleep expected on first-attempt success")
		return nil
	}))

	out, err := e.Extract(context.Background(), invoiceSchema(), []string{"p1.png"})
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, "fake-model", out.Model)
	assert.Equal(t, float32(1), out.Confidence)
	assert.Equal(t, 100, out.Usage.PromptTokens)
}

func TestExtractRetriesWithExponentialBackoff(t *testing.T) {
	p := &fakeProvider{
		responses: []string{"", "", `{"invoice_number":"INV-1","total":150.0,"vendor":null}`},
		errs:      []error{errors.New("rate limited"), errors.New("timeout"), nil},
	}

	var waits []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	e := NewExtractor(p, nil, WithMaxRetries(3), WithBackoffBase(2*time.Second), WithSleep(sleep))

	out, err := e.Extract(context.Background(), invoiceSchema(), []string{"p1.png"})
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, waits)
	assert.InDelta(t, 2.0/3.0, out.Confidence, 1e-6)
}

func TestExtractExhaustsBudget(t *testing.T) {
	boom := errors.New("provider down")
	p := &fakeProvider{responses: []string{""}, errs: []error{boom}}

	var waits int
	e := NewExtractor(p, nil, WithMaxRetries(3), WithSleep(func(ctx context.Context, d time.Duration) error {
		waits++
		return nil
	}))

	_, err := e.Extract(context.Background(), invoiceSchema(), nil)
	var exhausted *common.ExtractionExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, exhausted.Last, boom)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, 2, waits) // no sleep after the final attempt
}

// A malformed response counts as a failed attempt, same as a network error.
func TestExtractRetriesOnInvalidResponse(t *testing.T) {
	p := &fakeProvider{
		responses: []string{"not json at all", `{"invoice_number":"INV-1","total":1.0,"vendor":null}`},
		errs:      []error{nil, nil},
	}
	e := NewExtractor(p, nil, WithSleep(func(ctx context.Context, d time.Duration) error { return nil }))

	_, err := e.Extract(context.Background(), invoiceSchema(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestExtractStopsWhenContextCancelled(t *testing.T) {
	p := &fakeProvider{responses: []string{""}, errs: []error{errors.New("transient")}}
	e := NewExtractor(p, nil, WithSleep(func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}))

	_, err := e.Extract(context.Background(), invoiceSchema(), nil)
	var exhausted *common.ExtractionExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, exhausted.Last, context.Canceled)
	assert.Equal(t, 1, p.calls)
}
