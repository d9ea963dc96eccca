package verification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/wellness-service/internal/domain"
)

func newCallbackTestApp(store Store, mailer *fakeMailer) (*fiber.App, *Coordinator) {
	c := newTestCoordinator("0", store, mailer)
	return newCallbackApp(c), c
}

func verifyRequest(path, token, subjectID string) *http.Request {
	return httptest.NewRequest(http.MethodGet, path+"?token="+token+"&subject_id="+subjectID, nil)
}

func TestVerifyEndToEndScenario(t *testing.T) {
	store := &fakeStore{}
	app, c := newCallbackTestApp(store, &fakeMailer{})

	token, err := c.registry.Issue(domain.UserRef("alice"))
	require.NoError(t, err)

	// First click verifies and persists.
	resp, err := app.Test(verifyRequest("/verify", token, "alice"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []domain.SubjectRef{domain.UserRef("alice")}, store.verified())

	// Immediate repeat renders the same success page without re-running the
	// persistence callback.
	resp, err = app.Test(verifyRequest("/verify", token, "alice"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, store.verified(), 1)

	// Wrong subject after consumption is an invalid link.
	resp, err = app.Test(verifyRequest("/verify", token, "bob"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Len(t, store.verified(), 1)

	// Each attempt lands on its own outcome counter.
	assert.EqualValues(t, 1, c.metrics.RedemptionCount("first_time_success"))
	assert.EqualValues(t, 1, c.metrics.RedemptionCount("duplicate_within_window"))
	assert.EqualValues(t, 1, c.metrics.RedemptionCount("subject_mismatch"))
	assert.EqualValues(t, 0, c.metrics.RedemptionCount("not_found"))
}

func TestVerifyRejectsMissingParams(t *testing.T) {
	app, _ := newCallbackTestApp(&fakeStore{}, &fakeMailer{})

	for _, target := range []string{"/verify", "/verify?token=abc", "/verify?subject_id=alice"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
	}
}

func TestVerifyUnknownTokenRendersErrorPage(t *testing.T) {
	store := &fakeStore{}
	app, _ := newCallbackTestApp(store, &fakeMailer{})

	resp, err := app.Test(verifyRequest("/verify", "deadbeef", "alice"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, store.verified())
}

func TestVerifyStaffRouteBindsKeeperKind(t *testing.T) {
	store := &fakeStore{}
	app, c := newCallbackTestApp(store, &fakeMailer{})

	token, err := c.registry.Issue(domain.KeeperRef("keeper7"))
	require.NoError(t, err)

	// A keeper token never verifies through the end-user route.
	resp, err := app.Test(verifyRequest("/verify", token, "keeper7"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(verifyRequest("/verify-staff", token, "keeper7"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []domain.SubjectRef{domain.KeeperRef("keeper7")}, store.verified())
}

func TestVerifyPersistBeforeNotify(t *testing.T) {
	var (
		mu  sync.Mutex
		seq []string
	)

	store := &sequencedStore{mu: &mu, seq: &seq}
	app, c := newCallbackTestApp(store, &fakeMailer{})

	conn := &sequencedConn{mu: &mu, seq: &seq}
	c.hub.Register(domain.UserRef("alice"), conn)

	token, err := c.registry.Issue(domain.UserRef("alice"))
	require.NoError(t, err)

	resp, err := app.Test(verifyRequest("/verify", token, "alice"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"persist", "push"}, seq)
}

func TestVerifyPersistFailureStillRendersSuccess(t *testing.T) {
	store := &fakeStore{err: errors.New("connection reset")}
	app, c := newCallbackTestApp(store, &fakeMailer{})

	conn := &fakeConn{}
	c.hub.Register(domain.UserRef("alice"), conn)

	token, err := c.registry.Issue(domain.UserRef("alice"))
	require.NoError(t, err)

	resp, err := app.Test(verifyRequest("/verify", token, "alice"), -1)
	require.NoError(t, err)

	// The click is acknowledged, but no push goes out: a client receiving
	// the push must be able to trust the durable flag.
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, conn.received())
}

func TestResetLandingPage(t *testing.T) {
	app, _ := newCallbackTestApp(&fakeStore{}, &fakeMailer{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/reset-password?token=abc", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/reset-password", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type sequencedStore struct {
	mu  *sync.Mutex
	seq *[]string
}

func (s *sequencedStore) MarkVerified(context.Context, domain.SubjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.seq = append(*s.seq, "persist")
	return nil
}

type sequencedConn struct {
	mu  *sync.Mutex
	seq *[]string
}

func (s *sequencedConn) WriteMessage(int, []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.seq = append(*s.seq, "push")
	return nil
}

func (s *sequencedConn) Close() error { return nil }
