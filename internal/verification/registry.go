package verification

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/wellness-service/internal/domain"
)

// Outcome classifies a redemption attempt.
type Outcome int

const (
	OutcomeFirstTimeSuccess Outcome = iota
	OutcomeDuplicateWithinWindow
	OutcomeSubjectMismatch
	OutcomeNotFound
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeFirstTimeSuccess:
		return "first_time_success"
	case OutcomeDuplicateWithinWindow:
		return "duplicate_within_window"
	case OutcomeSubjectMismatch:
		return "subject_mismatch"
	default:
		return "not_found"
	}
}

// NewToken generates a cryptographically random 64-character hex token.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

type issuedToken struct {
	subject  domain.SubjectRef
	issuedAt time.Time
}

type redemption struct {
	subject    domain.SubjectRef
	redeemedAt time.Time
}

// Registry holds single-use verification tokens for this process. Tokens are
// never persisted: a restart invalidates them and the user simply requests a
// new link. Redemption is an atomic check-and-remove under one lock, so two
// concurrent redemptions of the same token cannot both observe it as present.
type Registry struct {
	mu       sync.Mutex
	tokens   map[string]issuedToken
	redeemed map[string]redemption

	dedupWindow    time.Duration
	cleanupHorizon time.Duration
	now            func() time.Time
}

// NewRegistry builds a registry. dedupWindow controls how long a consumed
// token keeps answering repeats as a harmless retry; cleanupHorizon controls
// how long redemption records are retained before lazy purging.
func NewRegistry(dedupWindow, cleanupHorizon time.Duration) *Registry {
	return &Registry{
		tokens:         make(map[string]issuedToken),
		redeemed:       make(map[string]redemption),
		dedupWindow:    dedupWindow,
		cleanupHorizon: cleanupHorizon,
		now:            time.Now,
	}
}

// Issue creates a fresh token bound to the subject and stores the mapping.
func (r *Registry) Issue(subject domain.SubjectRef) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.tokens[token] = issuedToken{subject: subject, issuedAt: r.now()}
	r.mu.Unlock()
	return token, nil
}

// Redeem consumes the token for the given subject. The first successful call
// removes the token and records a redemption; a repeat within the dedup
// window reports DuplicateWithinWindow so the HTTP surface stays idempotent
// against browser retries and link pre-fetchers.
func (r *Registry) Redeem(token string, subject domain.SubjectRef) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if entry, ok := r.tokens[token]; ok {
		if entry.subject != subject {
			// Token stays live so the bound subject can still redeem it.
			return OutcomeSubjectMismatch
		}
		delete(r.tokens, token)
		r.redeemed[token] = redemption{subject: subject, redeemedAt: now}
		r.purgeLocked(now)
		return OutcomeFirstTimeSuccess
	}

	if rec, ok := r.redeemed[token]; ok && now.Sub(rec.redeemedAt) <= r.dedupWindow {
		if rec.subject != subject {
			return OutcomeSubjectMismatch
		}
		return OutcomeDuplicateWithinWindow
	}

	return OutcomeNotFound
}

// Pending reports how many unredeemed tokens the registry holds.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

func (r *Registry) purgeLocked(now time.Time) {
	for token, rec := range r.redeemed {
		if now.Sub(rec.redeemedAt) > r.cleanupHorizon {
			delete(r.redeemed, token)
		}
	}
}
