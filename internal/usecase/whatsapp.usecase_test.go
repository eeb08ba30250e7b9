package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"site-service/internal/domain"
	"site-service/internal/rate"
	"site-service/pkg/xerrors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedSender returns one scripted outcome per attempt, then repeats the
// last one.
type scriptedSender struct {
	configured bool
	script     []error
	calls      int
}

func (s *scriptedSender) Configured() bool { return s.configured }
func (s *scriptedSender) Send(ctx context.Context, req *domain.SendMessageRequest) (string, error) {
	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++
	if err := s.script[idx]; err != nil {
		return "", err
	}
	return "wamid.ok", nil
}

type memMessageLogRepo struct {
	mu      sync.Mutex
	entries []*domain.MessageLog
}

func (m *memMessageLogRepo) LogMessage(ctx context.Context, e *domain.MessageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memMessageLogRepo) RecentFailures(ctx context.Context, limit int) ([]*domain.MessageLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.MessageLog
	for _, e := range m.entries {
		if e.Status == domain.MessageStatusFailed {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memMessageLogRepo) one(t *testing.T) *domain.MessageLog {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.entries, 1, "each send sequence writes exactly one log row")
	return m.entries[0]
}

var (
	errTransient = fmt.Errorf("gateway hiccup: %w", xerrors.ErrUpstreamUnavailable)
	errAuth      = fmt.Errorf("token expired: %w", xerrors.ErrUpstreamAuth)
)

type waFixture struct {
	uc     *WhatsAppUsecase
	sender *scriptedSender
	logs   *memMessageLogRepo
	slept  []time.Duration
}

func newWAFixture(t *testing.T, script ...error) *waFixture {
	t.Helper()
	f := &waFixture{
		sender: &scriptedSender{configured: true, script: script},
		logs:   &memMessageLogRepo{},
	}
	f.uc = NewWhatsAppUsecase(f.sender, f.logs, rate.NewLimiter(nil, zap.NewNop()), WhatsAppConfig{
		MaxAttempts: 3,
		RetryDelays: []time.Duration{time.Second, 2 * time.Second},
	}, zap.NewNop())
	f.uc.sleep = func(ctx context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return nil
	}
	return f
}

func waRequest() *domain.SendMessageRequest {
	return &domain.SendMessageRequest{
		To:   "+14155550123",
		Type: domain.MessageTypeText,
		Body: "Your demo is ready.",
	}
}

func TestWhatsAppSend_FirstAttemptSucceeds(t *testing.T) {
	f := newWAFixture(t, nil)

	id, err := f.uc.Send(context.Background(), waRequest())
	require.NoError(t, err)
	assert.Equal(t, "wamid.ok", id)
	assert.Equal(t, 1, f.sender.calls)
	assert.Empty(t, f.slept)

	entry := f.logs.one(t)
	assert.Equal(t, domain.MessageStatusSent, entry.Status)
	assert.Equal(t, 1, entry.Attempts)
	assert.Equal(t, "+14155550123", entry.Recipient)
	assert.Empty(t, entry.Error)
}

func TestWhatsAppSend_RetriesTransientThenSucceeds(t *testing.T) {
	f := newWAFixture(t, errTransient, errTransient, nil)

	id, err := f.uc.Send(context.Background(), waRequest())
	require.NoError(t, err)
	assert.Equal(t, "wamid.ok", id)
	assert.Equal(t, 3, f.sender.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.slept)

	entry := f.logs.one(t)
	assert.Equal(t, domain.MessageStatusSent, entry.Status)
	assert.Equal(t, 3, entry.Attempts)
}

func TestWhatsAppSend_ExhaustsAttempts(t *testing.T) {
	f := newWAFixture(t, errTransient)

	_, err := f.uc.Send(context.Background(), waRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "after 3 attempts")

	assert.Equal(t, 3, f.sender.calls)
	// Two waits between three attempts, none after the last.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.slept)

	entry := f.logs.one(t)
	assert.Equal(t, domain.MessageStatusFailed, entry.Status)
	assert.Equal(t, 3, entry.Attempts)
	assert.NotEmpty(t, entry.Error)
}

func TestWhatsAppSend_NonRetryableFailsImmediately(t *testing.T) {
	f := newWAFixture(t, errAuth)

	_, err := f.uc.Send(context.Background(), waRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrUpstreamAuth)

	assert.Equal(t, 1, f.sender.calls, "auth failures must not be retried")
	assert.Empty(t, f.slept)

	entry := f.logs.one(t)
	assert.Equal(t, domain.MessageStatusFailed, entry.Status)
	assert.Equal(t, 1, entry.Attempts)
}

func TestWhatsAppSend_LastDelayRepeats(t *testing.T) {
	f := newWAFixture(t, errTransient)
	f.uc.cfg.MaxAttempts = 4

	_, err := f.uc.Send(context.Background(), waRequest())
	require.Error(t, err)
	assert.Equal(t, 4, f.sender.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 2 * time.Second}, f.slept)
}

func TestWhatsAppSend_ContextCanceledDuringWait(t *testing.T) {
	f := newWAFixture(t, errTransient)
	f.uc.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	_, err := f.uc.Send(context.Background(), waRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.sender.calls)

	entry := f.logs.one(t)
	assert.Equal(t, domain.MessageStatusFailed, entry.Status)
}

func TestWhatsAppSend_ValidationRejected(t *testing.T) {
	f := newWAFixture(t, nil)

	req := waRequest()
	req.To = "not-a-number"

	_, err := f.uc.Send(context.Background(), req)
	require.Error(t, err)

	var ve *xerrors.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Zero(t, f.sender.calls)
	assert.Empty(t, f.logs.entries, "rejected requests are not logged as sends")
}

func TestWhatsAppSend_Unconfigured(t *testing.T) {
	f := newWAFixture(t, nil)
	f.sender.configured = false

	_, err := f.uc.Send(context.Background(), waRequest())
	assert.ErrorIs(t, err, xerrors.ErrServiceUnconfigured)
	assert.Zero(t, f.sender.calls)
}

func TestWhatsAppSend_RecipientRateLimited(t *testing.T) {
	f := newWAFixture(t, nil)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	f.uc.limiter = rate.NewLimiter(rdb, zap.NewNop())
	f.uc.cfg.RecipientLimit = rate.Limit{Max: 1, Window: time.Minute, Block: time.Minute}

	_, err := f.uc.Send(context.Background(), waRequest())
	require.NoError(t, err)

	_, err = f.uc.Send(context.Background(), waRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrRateLimited)
	assert.Equal(t, 1, f.sender.calls)
}

func TestWhatsAppSend_NilLogsRepo(t *testing.T) {
	f := newWAFixture(t, nil)
	f.uc.logs = nil

	id, err := f.uc.Send(context.Background(), waRequest())
	require.NoError(t, err)
	assert.Equal(t, "wamid.ok", id)
}

func TestRecentFailures(t *testing.T) {
	f := newWAFixture(t, errAuth)

	_, err := f.uc.Send(context.Background(), waRequest())
	require.Error(t, err)

	failures, err := f.uc.RecentFailures(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, domain.MessageStatusFailed, failures[0].Status)
}

func TestRecentFailures_StorageDisabled(t *testing.T) {
	f := newWAFixture(t, nil)
	f.uc.logs = nil

	_, err := f.uc.RecentFailures(context.Background(), 10)
	assert.ErrorIs(t, err, xerrors.ErrServiceUnconfigured)
}

func TestDelayFor(t *testing.T) {
	f := newWAFixture(t, nil)

	assert.Equal(t, time.Second, f.uc.delayFor(1))
	assert.Equal(t, 2*time.Second, f.uc.delayFor(2))
	assert.Equal(t, 2*time.Second, f.uc.delayFor(3))
	assert.Equal(t, 2*time.Second, f.uc.delayFor(9))
}

func TestNewWhatsAppUsecase_Defaults(t *testing.T) {
	uc := NewWhatsAppUsecase(&scriptedSender{}, nil, rate.NewLimiter(nil, zap.NewNop()), WhatsAppConfig{}, zap.NewNop())
	assert.Equal(t, 3, uc.cfg.MaxAttempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, uc.cfg.RetryDelays)
}

func TestWhatsAppSend_ErrorsDeeperChainStillDetected(t *testing.T) {
	// Fragment matching catches transient errors that don't wrap sentinels.
	f := newWAFixture(t, errors.New("upstream said: request timed out"), nil)

	id, err := f.uc.Send(context.Background(), waRequest())
	require.NoError(t, err)
	assert.Equal(t, "wamid.ok", id)
	assert.Equal(t, 2, f.sender.calls)
}
