package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/events"
	"github.com/jask/payledger/internal/gateway"
)

func initiated(t *testing.T, f *fixture) (string, string) {
	t.Helper()
	id := createTicket(t, f)
	res, err := f.payments.InitiatePayment(f.ctx, id, InitiateArgs{RedirectURL: "https://shop.test/r"})
	require.NoError(t, err)
	return id, res.GatewayPaymentID
}

func TestHandleNotification_UnknownPayment(t *testing.T) {
	t.Parallel()
	f := setup(t)
	rec := &recorder{}
	f.bus.Subscribe(rec, events.AllKinds...)

	ack := f.webhooks.HandleNotification(f.ctx, "tr_nope")
	require.False(t, ack.Found)
	ack = f.webhooks.HandleNotification(f.ctx, "  ")
	require.False(t, ack.Found)
	require.Empty(t, rec.got)
}

func TestHandleNotification_FailureStatusesPublishFailed(t *testing.T) {
	t.Parallel()
	for _, status := range []string{gateway.StatusFailed, gateway.StatusCanceled, gateway.StatusExpired} {
		t.Run(status, func(t *testing.T) {
			t.Parallel()
			f := setup(t)
			rec := &recorder{}
			f.bus.Subscribe(rec, events.AllKinds...)
			_, gwID := initiated(t, f)

			require.NoError(t, f.sandbox.SetStatus(gwID, status))
			ack := f.webhooks.HandleNotification(f.ctx, gwID)
			require.True(t, ack.Found)
			require.Equal(t, status, ack.Status)
			require.Equal(t, []events.Kind{events.KindFailed, events.KindStatusChanged}, rec.kinds())
		})
	}
}

func TestHandleNotification_SurvivesCanceledCaller(t *testing.T) {
	t.Parallel()
	f := setup(t)
	_, gwID := initiated(t, f)
	require.NoError(t, f.sandbox.SetStatus(gwID, gateway.StatusPaid))

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	ack := f.webhooks.HandleNotification(ctx, gwID)
	require.True(t, ack.Found)
	require.Equal(t, string(repository.StatusPaid), ack.Status)

	tx, err := f.txs.GetByGatewayPaymentID(f.ctx, gwID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusPaid, tx.Status)
}

func TestHandleNotification_AuthorizedThenPaid(t *testing.T) {
	t.Parallel()
	f := setup(t)
	rec := &recorder{}
	f.bus.Subscribe(rec, events.AllKinds...)
	_, gwID := initiated(t, f)

	require.NoError(t, f.sandbox.SetStatus(gwID, gateway.StatusAuthorized))
	f.webhooks.HandleNotification(f.ctx, gwID)
	require.NoError(t, f.sandbox.SetStatus(gwID, gateway.StatusPaid))
	f.webhooks.HandleNotification(f.ctx, gwID)

	require.Equal(t, []events.Kind{
		events.KindAuthorized, events.KindStatusChanged,
		events.KindPaid, events.KindStatusChanged,
	}, rec.kinds())
	require.Equal(t, repository.StatusAuthorized, rec.got[2].PreviousStatus)
}

func TestHandleNotification_TerminalStatusIsFinal(t *testing.T) {
	t.Parallel()
	f := setup(t)
	rec := &recorder{}
	f.bus.Subscribe(rec, events.KindStatusChanged)
	id, gwID := initiated(t, f)

	require.NoError(t, f.sandbox.SetStatus(gwID, gateway.StatusPaid))
	f.webhooks.HandleNotification(f.ctx, gwID)
	require.NoError(t, f.sandbox.SetStatus(gwID, gateway.StatusFailed))
	ack := f.webhooks.HandleNotification(f.ctx, gwID)
	require.True(t, ack.Found)
	require.Equal(t, string(repository.StatusPaid), ack.Status)

	tx, err := f.txs.Get(f.ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.StatusPaid, tx.Status)
	require.Len(t, rec.got, 1)
}

func TestHandleNotification_GatewayErrorIsAcknowledged(t *testing.T) {
	t.Parallel()
	f := setup(t)
	rec := &recorder{}
	f.bus.Subscribe(rec, events.AllKinds...)
	id, gwID := initiated(t, f)
	f.sandbox.FailGet = errors.New("connection reset")

	ack := f.webhooks.HandleNotification(f.ctx, gwID)
	require.True(t, ack.Found)
	require.Equal(t, string(repository.StatusPendingPayment), ack.Status)
	require.Empty(t, rec.got)

	tx, err := f.txs.Get(f.ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.StatusPendingPayment, tx.Status)
}

func TestHandleNotification_PassesTransactionTestmode(t *testing.T) {
	t.Parallel()
	f := setup(t)
	f.payments.Testmode = false
	var sawTestmode atomic.Bool
	sawTestmode.Store(true)
	f.payments.Gateway = &gatewayFunc{CreateFunc: func(context.Context, gateway.CreatePaymentRequest) (gateway.Payment, error) {
		return gateway.Payment{ID: "tr_live", Status: gateway.StatusOpen}, nil
	}}
	f.webhooks.Gateway = &gatewayFunc{GetFunc: func(_ context.Context, id string, opts gateway.GetOptions) (gateway.Payment, error) {
		sawTestmode.Store(opts.Testmode)
		return gateway.Payment{ID: id, Status: gateway.StatusPaid}, nil
	}}
	id := createTicket(t, f)
	_, err := f.payments.InitiatePayment(f.ctx, id, InitiateArgs{RedirectURL: "https://shop.test/r"})
	require.NoError(t, err)

	ack := f.webhooks.HandleNotification(f.ctx, "tr_live")
	require.True(t, ack.Found)
	require.False(t, sawTestmode.Load())
}

func TestHandleNotification_ConcurrentDeliveriesPublishOnce(t *testing.T) {
	t.Parallel()
	f := setup(t)
	var mu sync.Mutex
	paid := 0
	f.bus.Subscribe(events.ListenerFunc(func(context.Context, events.Event) error {
		mu.Lock()
		paid++
		mu.Unlock()
		return nil
	}), events.KindPaid)

	_, gwID := initiated(t, f)
	slow := f.webhooks.Gateway
	f.webhooks.Gateway = &gatewayFunc{GetFunc: func(ctx context.Context, id string, opts gateway.GetOptions) (gateway.Payment, error) {
		time.Sleep(10 * time.Millisecond)
		return slow.GetPayment(ctx, id, opts)
	}}
	require.NoError(t, f.sandbox.SetStatus(gwID, gateway.StatusPaid))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ack := f.webhooks.HandleNotification(f.ctx, gwID)
			assert.True(t, ack.Found)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, paid)
}

func TestMapGatewayStatus(t *testing.T) {
	t.Parallel()
	cases := map[string]repository.Status{
		"open":       repository.StatusPendingPayment,
		"pending":    repository.StatusPendingPayment,
		"authorized": repository.StatusAuthorized,
		"paid":       repository.StatusPaid,
		"FAILED":     repository.StatusFailed,
		"canceled":   repository.StatusCanceled,
		"expired":    repository.StatusExpired,
	}
	for in, want := range cases {
		got, ok := MapGatewayStatus(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	_, ok := MapGatewayStatus("refunded")
	require.False(t, ok)
}
