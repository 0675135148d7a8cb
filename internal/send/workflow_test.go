package send

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quiverwallet/quiver/internal/events"
	"github.com/quiverwallet/quiver/internal/pricefeed"
	"github.com/quiverwallet/quiver/internal/provider"
	"github.com/quiverwallet/quiver/internal/registry"
)

type feeReply struct {
	fee decimal.Decimal
	err error
}

// stubProvider hands out one channel per EstimateFee call so tests can
// complete estimates out of order. Submissions are recorded.
type stubProvider struct {
	mu        sync.Mutex
	pending   []chan feeReply
	arrived   chan struct{}
	autoFee   bool
	submitted []provider.TransferRequest
	submitErr error
	refreshes int
}

func newStubProvider() *stubProvider {
	return &stubProvider{arrived: make(chan struct{}, 16)}
}

func (s *stubProvider) QueryBalances(ctx context.Context, walletID string, reg *registry.Registry) ([]provider.BalanceResult, error) {
	return nil, nil
}

func (s *stubProvider) EstimateFee(ctx context.Context, req provider.FeeRequest) (decimal.Decimal, error) {
	s.mu.Lock()
	if s.autoFee {
		s.mu.Unlock()
		return decimal.RequireFromString("0.0002"), nil
	}
	ch := make(chan feeReply, 1)
	s.pending = append(s.pending, ch)
	s.mu.Unlock()
	s.arrived <- struct{}{}

	select {
	case r := <-ch:
		return r.fee, r.err
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
}

// completeFee resolves the i-th estimate call (in arrival order).
func (s *stubProvider) completeFee(i int, fee string, err error) {
	s.mu.Lock()
	ch := s.pending[i]
	s.mu.Unlock()
	ch <- feeReply{fee: decimal.RequireFromString(fee), err: err}
}

func (s *stubProvider) SubmitTransfer(ctx context.Context, req provider.TransferRequest) (provider.TransferReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return provider.TransferReceipt{}, s.submitErr
	}
	s.submitted = append(s.submitted, req)
	return provider.TransferReceipt{TxHash: "0xstub", FeePaid: decimal.Zero}, nil
}

func (s *stubProvider) lastSubmitted() (provider.TransferRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.submitted) == 0 {
		return provider.TransferRequest{}, false
	}
	return s.submitted[len(s.submitted)-1], true
}

func (s *stubProvider) RefreshBalances(ctx context.Context, walletID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturePublisher) Publish(event events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturePublisher) has(t events.EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Type() == t {
			return true
		}
	}
	return false
}

func ethToken() registry.TokenDescriptor {
	return registry.TokenDescriptor{Network: "ethereum", Symbol: "ETH", Name: "Ethereum", Decimals: 18}
}

func ethPrices() pricefeed.PriceSource {
	return pricefeed.NewStatic(map[string]decimal.Decimal{"ETH": decimal.NewFromInt(2)})
}

func newTestWorkflow(t *testing.T, prov provider.Provider, opts ...func(*Config)) *Workflow {
	t.Helper()
	cfg := Config{
		WalletID: "wallet-1",
		Network:  "ethereum",
		Token:    ethToken(),
		Balance:  decimal.NewFromInt(10),
		Provider: prov,
		Prices:   ethPrices(),
		Logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	w := New(cfg)
	t.Cleanup(w.Close)
	return w
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestStartTransitions(t *testing.T) {
	w := newTestWorkflow(t, provider.NewFake(zap.NewNop()))

	snap := w.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, ModeToken, snap.Mode)
	assert.Equal(t, FeeNone, snap.Fee.Status)

	require.NoError(t, w.Start())
	assert.Equal(t, StateEntering, w.Snapshot().State)

	assert.ErrorIs(t, w.Start(), ErrAlreadyStarted)

	waitFor(t, 2*time.Second, func() bool { return w.Snapshot().Fee.Status == FeeReady })
	assert.True(t, w.Snapshot().Fee.Fee.Equal(decimal.RequireFromString("0.0002")))
}

func TestOperationsRequireStart(t *testing.T) {
	w := newTestWorkflow(t, provider.NewFake(zap.NewNop()))

	assert.ErrorIs(t, w.SetRecipient("0xabc"), ErrNotStarted)
	assert.ErrorIs(t, w.SetAmount("1"), ErrNotStarted)
	assert.ErrorIs(t, w.ToggleInputMode(), ErrNotStarted)
	assert.ErrorIs(t, w.UseMax(), ErrNotStarted)
	assert.ErrorIs(t, w.Send(), ErrNotStarted)
}

func TestSanitizeAmount(t *testing.T) {
	cases := []struct {
		raw, want string
	}{
		{"10", "10"},
		{"1,5", "1.5"},
		{"$1.50", "1.50"},
		{"1.2.3", "1.2"},
		{"1a2b3", "123"},
		{"abc", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sanitizeAmount(tc.raw), "raw %q", tc.raw)
	}
}

func TestAmountValidation(t *testing.T) {
	prov := newStubProvider()
	w := newTestWorkflow(t, prov)
	require.NoError(t, w.Start())
	<-prov.arrived // initial estimate call

	// No fee yet: the whole balance is spendable.
	require.NoError(t, w.SetAmount("10.0001"))
	assert.Equal(t, "Maximum: 10 ETH", w.Snapshot().ValidationError)

	require.NoError(t, w.SetAmount("9.75"))
	assert.Empty(t, w.Snapshot().ValidationError)

	// The fee landing shrinks the spendable maximum and re-checks the amount.
	prov.completeFee(0, "0.5", nil)
	waitFor(t, 2*time.Second, func() bool {
		return w.Snapshot().ValidationError == "Maximum: 9.5 ETH"
	})

	require.NoError(t, w.SetAmount("5"))
	assert.Empty(t, w.Snapshot().ValidationError)
}

func TestUseMaxToken(t *testing.T) {
	prov := newStubProvider()
	w := newTestWorkflow(t, prov)
	require.NoError(t, w.Start())
	<-prov.arrived

	// Fee still estimating: the maximum is the full balance.
	require.NoError(t, w.UseMax())
	assert.Equal(t, "10", w.Snapshot().AmountText)

	prov.completeFee(0, "0.5", nil)
	waitFor(t, 2*time.Second, func() bool { return w.Snapshot().Fee.Status == FeeReady })

	require.NoError(t, w.UseMax())
	assert.Equal(t, "9.5", w.Snapshot().AmountText)
}

func TestUseMaxFiatIgnoresFee(t *testing.T) {
	prov := newStubProvider()
	prov.autoFee = true
	w := newTestWorkflow(t, prov)
	require.NoError(t, w.Start())
	waitFor(t, 2*time.Second, func() bool { return w.Snapshot().Fee.Status == FeeReady })

	require.NoError(t, w.ToggleInputMode())
	require.NoError(t, w.UseMax())
	assert.Equal(t, "20.00", w.Snapshot().AmountText)
}

func TestToggleClearsAmount(t *testing.T) {
	w := newTestWorkflow(t, provider.NewFake(zap.NewNop()))
	require.NoError(t, w.Start())

	require.NoError(t, w.SetAmount("999"))
	require.NotEmpty(t, w.Snapshot().ValidationError)

	require.NoError(t, w.ToggleInputMode())
	snap := w.Snapshot()
	assert.Equal(t, ModeFiat, snap.Mode)
	assert.Empty(t, snap.AmountText)
	assert.Empty(t, snap.ValidationError)

	require.NoError(t, w.ToggleInputMode())
	assert.Equal(t, ModeToken, w.Snapshot().Mode)
}

func TestSupersededFeeDiscarded(t *testing.T) {
	prov := newStubProvider()
	w := newTestWorkflow(t, prov)
	require.NoError(t, w.Start())
	<-prov.arrived

	require.NoError(t, w.RefreshFee())
	<-prov.arrived

	// The newer estimate resolves first.
	prov.completeFee(1, "0.7", nil)
	waitFor(t, 2*time.Second, func() bool {
		snap := w.Snapshot()
		return snap.Fee.Status == FeeReady && snap.Fee.Fee.Equal(decimal.RequireFromString("0.7"))
	})

	// The stale completion must not overwrite it.
	prov.completeFee(0, "0.3", nil)
	time.Sleep(50 * time.Millisecond)
	snap := w.Snapshot()
	assert.Equal(t, FeeReady, snap.Fee.Status)
	assert.True(t, snap.Fee.Fee.Equal(decimal.RequireFromString("0.7")), "got %s", snap.Fee.Fee)
}

func TestFeeErrorSurfaced(t *testing.T) {
	prov := newStubProvider()
	w := newTestWorkflow(t, prov)
	require.NoError(t, w.Start())
	<-prov.arrived

	prov.completeFee(0, "0", errors.New("rpc timeout"))
	waitFor(t, 2*time.Second, func() bool { return w.Snapshot().Fee.Status == FeeError })
	assert.Equal(t, "rpc timeout", w.Snapshot().Fee.Err)
}

func TestCloseDiscardsPendingFee(t *testing.T) {
	prov := newStubProvider()
	w := newTestWorkflow(t, prov)
	require.NoError(t, w.Start())
	<-prov.arrived

	w.Close()
	prov.completeFee(0, "0.5", nil)
	time.Sleep(50 * time.Millisecond)

	assert.NotEqual(t, FeeReady, w.Snapshot().Fee.Status)
	assert.ErrorIs(t, w.SetAmount("1"), ErrClosed)
	assert.ErrorIs(t, w.Send(), ErrClosed)
}

func TestSendGuards(t *testing.T) {
	w := newTestWorkflow(t, provider.NewFake(zap.NewNop()))
	require.NoError(t, w.Start())

	assert.ErrorIs(t, w.Send(), ErrMissingRecipient)

	require.NoError(t, w.SetRecipient("0xrecipient"))
	assert.ErrorIs(t, w.Send(), ErrMissingAmount)

	require.NoError(t, w.SetAmount("0"))
	assert.ErrorIs(t, w.Send(), ErrInvalidAmount)

	require.NoError(t, w.SetAmount("999"))
	assert.ErrorIs(t, w.Send(), ErrInvalidAmount)
}

func TestSendSuccess(t *testing.T) {
	fake := provider.NewFake(zap.NewNop())
	fake.SetBalance("ethereum", nil, decimal.NewFromInt(10))
	bus := &capturePublisher{}
	w := newTestWorkflow(t, fake, func(cfg *Config) { cfg.Bus = bus })

	require.NoError(t, w.Start())
	require.NoError(t, w.SetRecipient("0xrecipient"))
	require.NoError(t, w.SetAmount("3"))
	require.NoError(t, w.Send())

	waitFor(t, 2*time.Second, func() bool { return w.Snapshot().State == StateSubmitted })

	snap := w.Snapshot()
	require.NotNil(t, snap.Result)
	assert.NotEmpty(t, snap.Result.TxHash)
	assert.Empty(t, snap.SubmitError)

	// Submitted is terminal.
	assert.ErrorIs(t, w.Send(), ErrTerminal)
	assert.ErrorIs(t, w.SetAmount("1"), ErrTerminal)

	assert.True(t, bus.has(events.WorkflowStarted))
	assert.True(t, bus.has(events.WorkflowSubmitted))

	// A successful submission invalidates cached balances.
	waitFor(t, 2*time.Second, func() bool { return fake.RefreshCount() == 1 })
}

func TestDoubleSubmitRejected(t *testing.T) {
	fake := provider.NewFake(zap.NewNop())
	fake.SetSubmitDelay(200 * time.Millisecond)
	w := newTestWorkflow(t, fake)

	require.NoError(t, w.Start())
	require.NoError(t, w.SetRecipient("0xrecipient"))
	require.NoError(t, w.SetAmount("3"))
	require.NoError(t, w.Send())

	assert.ErrorIs(t, w.Send(), ErrAlreadySubmitting)
	assert.ErrorIs(t, w.SetAmount("1"), ErrAlreadySubmitting)

	waitFor(t, 2*time.Second, func() bool { return w.Snapshot().State == StateSubmitted })
}

func TestSubmitFailureAllowsRetry(t *testing.T) {
	fake := provider.NewFake(zap.NewNop())
	fake.FailSubmit(errors.New("nonce too low"))
	bus := &capturePublisher{}
	w := newTestWorkflow(t, fake, func(cfg *Config) { cfg.Bus = bus })

	require.NoError(t, w.Start())
	require.NoError(t, w.SetRecipient("0xrecipient"))
	require.NoError(t, w.SetAmount("3"))
	require.NoError(t, w.Send())

	waitFor(t, 2*time.Second, func() bool { return w.Snapshot().State == StateFailed })

	// Entered details survive the failure.
	snap := w.Snapshot()
	assert.Equal(t, "nonce too low", snap.SubmitError)
	assert.Equal(t, "0xrecipient", snap.Recipient)
	assert.Equal(t, "3", snap.AmountText)
	assert.True(t, bus.has(events.WorkflowFailed))

	fake.FailSubmit(nil)
	require.NoError(t, w.Send())
	waitFor(t, 2*time.Second, func() bool { return w.Snapshot().State == StateSubmitted })
	assert.Empty(t, w.Snapshot().SubmitError)
}

func TestRequireFeeBlocksSend(t *testing.T) {
	prov := newStubProvider()
	w := newTestWorkflow(t, prov, func(cfg *Config) { cfg.RequireFee = true })

	require.NoError(t, w.Start())
	<-prov.arrived
	require.NoError(t, w.SetRecipient("0xrecipient"))
	require.NoError(t, w.SetAmount("3"))

	assert.ErrorIs(t, w.Send(), ErrFeeUnavailable)

	prov.completeFee(0, "0.0002", nil)
	waitFor(t, 2*time.Second, func() bool { return w.Snapshot().Fee.Status == FeeReady })

	require.NoError(t, w.Send())
	waitFor(t, 2*time.Second, func() bool { return w.Snapshot().State == StateSubmitted })
}

func TestFiatSendConvertsAmount(t *testing.T) {
	prov := newStubProvider()
	prov.autoFee = true
	w := newTestWorkflow(t, prov)

	require.NoError(t, w.Start())
	require.NoError(t, w.SetRecipient("0xrecipient"))
	require.NoError(t, w.ToggleInputMode())
	require.NoError(t, w.SetAmount("10"))

	require.NoError(t, w.Send())
	waitFor(t, 2*time.Second, func() bool { return w.Snapshot().State == StateSubmitted })

	req, ok := prov.lastSubmitted()
	require.True(t, ok)
	// 10 USD at a spot price of 2 is 5 tokens.
	assert.True(t, req.Amount.Equal(decimal.NewFromInt(5)), "got %s", req.Amount)
}

func TestFiatSendUnknownPrice(t *testing.T) {
	prov := newStubProvider()
	prov.autoFee = true
	w := newTestWorkflow(t, prov, func(cfg *Config) { cfg.Prices = nil })

	require.NoError(t, w.Start())
	require.NoError(t, w.SetRecipient("0xrecipient"))
	require.NoError(t, w.ToggleInputMode())
	require.NoError(t, w.SetAmount("10"))

	assert.ErrorIs(t, w.Send(), ErrUnknownPrice)
}
