package verification

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/wellness-service/internal/domain"
)

func TestRegistryRedeemOutcomes(t *testing.T) {
	r := NewRegistry(5*time.Second, 10*time.Second)
	alice := domain.UserRef("alice")

	token, err := r.Issue(alice)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Wrong subject does not consume the token.
	assert.Equal(t, OutcomeSubjectMismatch, r.Redeem(token, domain.UserRef("bob")))
	assert.Equal(t, OutcomeFirstTimeSuccess, r.Redeem(token, alice))

	// Repeats inside the window are harmless retries.
	assert.Equal(t, OutcomeDuplicateWithinWindow, r.Redeem(token, alice))
	assert.Equal(t, OutcomeSubjectMismatch, r.Redeem(token, domain.UserRef("bob")))

	assert.Equal(t, OutcomeNotFound, r.Redeem("never-issued", alice))
}

func TestRegistrySubjectKindIsPartOfTheBinding(t *testing.T) {
	r := NewRegistry(5*time.Second, 10*time.Second)

	token, err := r.Issue(domain.UserRef("sam"))
	require.NoError(t, err)

	// Same identifier, wrong kind: a user token must not verify a keeper.
	assert.Equal(t, OutcomeSubjectMismatch, r.Redeem(token, domain.KeeperRef("sam")))
	assert.Equal(t, OutcomeFirstTimeSuccess, r.Redeem(token, domain.UserRef("sam")))
}

func TestRegistryDedupWindowExpires(t *testing.T) {
	r := NewRegistry(5*time.Second, 10*time.Second)
	now := time.Now()
	r.now = func() time.Time { return now }

	alice := domain.UserRef("alice")
	token, err := r.Issue(alice)
	require.NoError(t, err)
	require.Equal(t, OutcomeFirstTimeSuccess, r.Redeem(token, alice))

	now = now.Add(4 * time.Second)
	assert.Equal(t, OutcomeDuplicateWithinWindow, r.Redeem(token, alice))

	now = now.Add(2 * time.Second)
	assert.Equal(t, OutcomeNotFound, r.Redeem(token, alice))
}

func TestRegistryPurgesStaleRedemptions(t *testing.T) {
	r := NewRegistry(5*time.Second, 10*time.Second)
	now := time.Now()
	r.now = func() time.Time { return now }

	first, err := r.Issue(domain.UserRef("a"))
	require.NoError(t, err)
	require.Equal(t, OutcomeFirstTimeSuccess, r.Redeem(first, domain.UserRef("a")))

	now = now.Add(11 * time.Second)

	second, err := r.Issue(domain.UserRef("b"))
	require.NoError(t, err)
	require.Equal(t, OutcomeFirstTimeSuccess, r.Redeem(second, domain.UserRef("b")))

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Len(t, r.redeemed, 1)
	_, stale := r.redeemed[first]
	assert.False(t, stale)
}

func TestRegistryConcurrentRedeemSingleWinner(t *testing.T) {
	r := NewRegistry(5*time.Second, 10*time.Second)
	alice := domain.UserRef("alice")

	token, err := r.Issue(alice)
	require.NoError(t, err)

	const attempts = 64
	outcomes := make(chan Outcome, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- r.Redeem(token, alice)
		}()
	}
	wg.Wait()
	close(outcomes)

	var firsts, duplicates int
	for outcome := range outcomes {
		switch outcome {
		case OutcomeFirstTimeSuccess:
			firsts++
		case OutcomeDuplicateWithinWindow:
			duplicates++
		default:
			t.Fatalf("unexpected outcome %v", outcome)
		}
	}
	assert.Equal(t, 1, firsts)
	assert.Equal(t, attempts-1, duplicates)
}

func TestNewTokenUniqueness(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
