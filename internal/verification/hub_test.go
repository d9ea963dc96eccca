package verification

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/wellness-service/internal/domain"
	"github.com/spec-kit/wellness-service/internal/observability"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []string
	closed   bool
	writeErr error
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.messages = append(f.messages, string(data))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.messages...)
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestHub() *Hub {
	return NewHub(zap.NewNop(), observability.NewMetrics())
}

func TestHubLastRegistrationWins(t *testing.T) {
	hub := newTestHub()
	alice := domain.UserRef("alice")

	connA := &fakeConn{}
	connB := &fakeConn{}
	hub.Register(alice, connA)
	hub.Register(alice, connB)

	assert.True(t, hub.Notify(alice))
	assert.Equal(t, []string{VerifiedPayload}, connB.received())
	assert.Empty(t, connA.received())
	assert.True(t, connA.isClosed())
}

func TestHubNotifyWithoutConnectionDropsSilently(t *testing.T) {
	hub := newTestHub()
	assert.False(t, hub.Notify(domain.UserRef("nobody")))
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub := newTestHub()
	alice := domain.UserRef("alice")
	conn := &fakeConn{}

	hub.Register(alice, conn)
	hub.Unregister(conn)

	assert.False(t, hub.Notify(alice))
	assert.Empty(t, conn.received())
}

func TestHubUnregisterUnknownConnIsNoop(t *testing.T) {
	hub := newTestHub()
	hub.Unregister(&fakeConn{})
}

func TestHubStaleUnregisterKeepsReplacement(t *testing.T) {
	hub := newTestHub()
	alice := domain.UserRef("alice")

	connA := &fakeConn{}
	connB := &fakeConn{}
	hub.Register(alice, connA)
	hub.Register(alice, connB)

	// The close handler of the replaced connection may run after the
	// replacement registered; it must not evict the new connection.
	hub.Unregister(connA)

	assert.True(t, hub.Notify(alice))
	assert.Equal(t, []string{VerifiedPayload}, connB.received())
}

// overlapConn flags any second writer entering WriteMessage or Close while
// another is still inside. No internal mutex: overlap detection relies on
// the hub serializing access.
type overlapConn struct {
	writers int32
	overlap int32
	writes  int32
}

func (c *overlapConn) enter() {
	if atomic.AddInt32(&c.writers, 1) > 1 {
		atomic.StoreInt32(&c.overlap, 1)
	}
	time.Sleep(20 * time.Microsecond)
}

func (c *overlapConn) WriteMessage(int, []byte) error {
	c.enter()
	atomic.AddInt32(&c.writers, -1)
	atomic.AddInt32(&c.writes, 1)
	return nil
}

func (c *overlapConn) Close() error {
	c.enter()
	atomic.AddInt32(&c.writers, -1)
	return nil
}

func (c *overlapConn) overlapped() bool {
	return atomic.LoadInt32(&c.overlap) != 0
}

func TestHubSerializesConcurrentNotifies(t *testing.T) {
	hub := newTestHub()
	alice := domain.UserRef("alice")
	conn := &overlapConn{}
	hub.Register(alice, conn)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				hub.Notify(alice)
			}
		}()
	}
	wg.Wait()

	assert.False(t, conn.overlapped())
	assert.EqualValues(t, 8*200, atomic.LoadInt32(&conn.writes))
}

func TestHubReplaceDoesNotOverlapInFlightWrite(t *testing.T) {
	hub := newTestHub()
	alice := domain.UserRef("alice")
	old := &overlapConn{}
	hub.Register(alice, old)

	// Register closes the replaced connection; that close must wait for any
	// write still holding the connection.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			hub.Notify(alice)
		}
	}()
	go func() {
		defer wg.Done()
		hub.Register(alice, &overlapConn{})
	}()
	wg.Wait()

	assert.False(t, old.overlapped())
}

func TestHubWriteFailureEvictsConnection(t *testing.T) {
	hub := newTestHub()
	alice := domain.UserRef("alice")
	conn := &fakeConn{writeErr: errors.New("broken pipe")}

	hub.Register(alice, conn)
	assert.False(t, hub.Notify(alice))
	assert.False(t, hub.Notify(alice))
}
