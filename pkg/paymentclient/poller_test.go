package paymentclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type scriptedChecker struct {
	answers []any
	calls   int
}

func (s *scriptedChecker) CheckStatus(context.Context, string) (*StatusResponse, error) {
	a := s.answers[min(s.calls, len(s.answers)-1)]
	s.calls++
	if err, ok := a.(error); ok {
		return nil, err
	}
	return a.(*StatusResponse), nil
}

func pendingStatus() *StatusResponse { return &StatusResponse{Status: "pending"} }

func newTestPoller(c StatusChecker) (*Poller, *[]time.Duration) {
	var waits []time.Duration
	p := NewPoller(c)
	p.Wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return p, &waits
}

func TestPoll_Success(t *testing.T) {
	c := &scriptedChecker{answers: []any{
		pendingStatus(),
		errors.New("network down"),
		&StatusResponse{Status: "completed", ResultCode: lo.ToPtr(0)},
	}}
	p, waits := newTestPoller(c)

	res, err := p.Poll(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	require.Equal(t, PollStateSuccess, res.State)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, []time.Duration{6 * time.Second, 6 * time.Second}, *waits)
}

func TestPoll_CompletedWithoutResultCodeKeepsPolling(t *testing.T) {
	c := &scriptedChecker{answers: []any{
		&StatusResponse{Status: "completed"},
		&StatusResponse{Status: "completed", ResultCode: lo.ToPtr(0)},
	}}
	p, _ := newTestPoller(c)

	res, err := p.Poll(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	require.Equal(t, 2, res.Attempts)
}

func TestPoll_FirstCheckIsImmediate(t *testing.T) {
	c := &scriptedChecker{answers: []any{&StatusResponse{Status: "completed", ResultCode: lo.ToPtr(0)}}}
	p, waits := newTestPoller(c)

	res, err := p.Poll(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	require.Equal(t, PollStateSuccess, res.State)
	require.Equal(t, 1, res.Attempts)
	require.Empty(t, *waits)
}

func TestPoll_Failed(t *testing.T) {
	c := &scriptedChecker{answers: []any{&StatusResponse{Status: "failed", ResultCode: lo.ToPtr(1032)}}}
	p, _ := newTestPoller(c)

	res, err := p.Poll(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	require.Equal(t, PollStateFailed, res.State)
	require.Equal(t, 1032, *res.Status.ResultCode)
}

func TestPoll_TimeoutAfterMaxAttempts(t *testing.T) {
	c := &scriptedChecker{answers: []any{pendingStatus()}}
	p, waits := newTestPoller(c)

	res, err := p.Poll(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	require.Equal(t, PollStateTimeout, res.State)
	require.Equal(t, 30, res.Attempts)
	require.Equal(t, 30, c.calls)
	require.Len(t, *waits, 29)
}

func TestPoll_ErrorsCountTowardCap(t *testing.T) {
	c := &scriptedChecker{answers: []any{errors.New("timeout")}}
	p, _ := newTestPoller(c)
	p.MaxAttempts = 5

	res, err := p.Poll(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	require.Equal(t, PollStateTimeout, res.State)
	require.Equal(t, 5, res.Attempts)
	require.Nil(t, res.Status)
	require.EqualError(t, res.LastErr, "timeout")
}

func TestPoll_ContextCancelled(t *testing.T) {
	c := &scriptedChecker{answers: []any{pendingStatus()}}
	p := NewPoller(c)
	ctx, cancel := context.WithCancel(context.Background())
	p.OnAttempt = func(attempt int, _ *StatusResponse, _ error) {
		if attempt == 2 {
			cancel()
		}
	}
	p.Interval = time.Millisecond

	res, err := p.Poll(ctx, "ws_CO_1")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, res.Attempts)
}
