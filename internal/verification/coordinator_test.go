package verification

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/wellness-service/internal/config"
	"github.com/spec-kit/wellness-service/internal/domain"
	"github.com/spec-kit/wellness-service/internal/observability"
)

type fakeStore struct {
	mu    sync.Mutex
	calls []domain.SubjectRef
	err   error
}

func (f *fakeStore) MarkVerified(_ context.Context, subject domain.SubjectRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, subject)
	return nil
}

func (f *fakeStore) verified() []domain.SubjectRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SubjectRef{}, f.calls...)
}

type fakeMailer struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (f *fakeMailer) SendVerificationLink(_ context.Context, _ string, _ domain.SubjectRef, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tokens = append(f.tokens, token)
	return nil
}

func (f *fakeMailer) SendResetLink(_ context.Context, _ string, _ domain.SubjectRef, token string) error {
	return f.SendVerificationLink(context.Background(), "", domain.SubjectRef{}, token)
}

func (f *fakeMailer) sentTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.tokens...)
}

func newTestCoordinator(port string, store Store, mailer *fakeMailer) *Coordinator {
	cfg := config.VerificationConfig{
		Host:              "127.0.0.1",
		Port:              port,
		DedupWindowSec:    5,
		CleanupHorizonSec: 10,
	}
	return NewCoordinator(cfg, Dependencies{
		Registry: NewRegistry(cfg.DedupWindow(), cfg.CleanupHorizon()),
		Hub:      NewHub(zap.NewNop(), observability.NewMetrics()),
		Store:    store,
		Mailer:   mailer,
		Logger:   zap.NewNop(),
		Metrics:  observability.NewMetrics(),
	})
}

func TestCoordinatorStartStopIdempotent(t *testing.T) {
	c := newTestCoordinator("0", &fakeStore{}, &fakeMailer{})

	require.NoError(t, c.Start())
	require.NoError(t, c.Start())
	assert.True(t, c.Running())

	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
	assert.False(t, c.Running())
}

func TestCoordinatorBindConflict(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	c := newTestCoordinator(port, &fakeStore{}, &fakeMailer{})

	err = c.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrListenerConflict))
	assert.False(t, c.Running())
}

func TestSendVerificationRequestLazilyStarts(t *testing.T) {
	mailer := &fakeMailer{}
	c := newTestCoordinator("0", &fakeStore{}, mailer)
	defer c.Stop() //nolint:errcheck

	require.False(t, c.Running())
	err := c.SendVerificationRequest(context.Background(), domain.UserRef("alice"), "alice@example.com")
	require.NoError(t, err)

	assert.True(t, c.Running())
	assert.Len(t, mailer.sentTokens(), 1)
	assert.Equal(t, 1, c.registry.Pending())
}

func TestSendVerificationRequestMailFailure(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("relay refused")}
	c := newTestCoordinator("0", &fakeStore{}, mailer)
	defer c.Stop() //nolint:errcheck

	err := c.SendVerificationRequest(context.Background(), domain.UserRef("alice"), "alice@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMailDispatch))
	assert.False(t, errors.Is(err, ErrListenerConflict))

	// The token outlives the failed email: a resend issues a new one and
	// either link redeems.
	assert.Equal(t, 1, c.registry.Pending())
}
