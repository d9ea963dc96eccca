package verification

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/wellness-service/internal/domain"
	"github.com/spec-kit/wellness-service/internal/observability"
)

// VerifiedPayload is the single in-scope message the hub pushes. The desktop
// client treats any other traffic on the channel as noise.
const VerifiedPayload = "verified"

// Conn is the surface the hub needs from a live connection. Implemented by
// *websocket.Conn.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// liveConn serializes WriteMessage and Close on one connection. The
// underlying websocket conn forbids concurrent writers, and a subject can be
// notified from several handler goroutines at once.
type liveConn struct {
	mu   sync.Mutex
	conn Conn
}

func (l *liveConn) write(messageType int, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(messageType, data)
}

func (l *liveConn) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.Close()
}

// Hub owns the per-subject connection map. At most one connection per
// subject; a reconnect replaces the previous connection. No other component
// may write to a registered connection.
type Hub struct {
	mu        sync.Mutex
	bySubject map[domain.SubjectRef]*liveConn
	byConn    map[Conn]domain.SubjectRef

	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewHub builds an empty hub.
func NewHub(logger *zap.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		bySubject: make(map[domain.SubjectRef]*liveConn),
		byConn:    make(map[Conn]domain.SubjectRef),
		logger:    logger,
		metrics:   metrics,
	}
}

// Register binds the connection to the subject, last registration wins. Any
// prior connection for the subject is closed and forgotten.
func (h *Hub) Register(subject domain.SubjectRef, conn Conn) {
	wrapped := &liveConn{conn: conn}

	h.mu.Lock()
	prev, hadPrev := h.bySubject[subject]
	h.bySubject[subject] = wrapped
	h.byConn[conn] = subject
	if hadPrev {
		delete(h.byConn, prev.conn)
	}
	h.mu.Unlock()

	if hadPrev {
		_ = prev.close()
	}
	h.logger.Debug("live channel registered",
		zap.String("subject_type", string(subject.Type)),
		zap.String("subject_id", subject.ID),
		zap.Bool("replaced", hadPrev),
	)
}

// Unregister drops the connection if it is still the current one for its
// subject. Safe to call in any order relative to Register and Notify.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	subject, ok := h.byConn[conn]
	if ok {
		delete(h.byConn, conn)
		if cur := h.bySubject[subject]; cur != nil && cur.conn == conn {
			delete(h.bySubject, subject)
		}
	}
	h.mu.Unlock()

	if ok {
		h.logger.Debug("live channel unregistered",
			zap.String("subject_type", string(subject.Type)),
			zap.String("subject_id", subject.ID),
		)
	}
}

// Notify pushes the verified payload to the subject's current connection.
// Returns false when nobody is connected; the client falls back to polling.
// The hub lock is never held across the write; the per-connection lock in
// liveConn keeps concurrent notifications from interleaving on the wire.
func (h *Hub) Notify(subject domain.SubjectRef) bool {
	h.mu.Lock()
	conn, ok := h.bySubject[subject]
	h.mu.Unlock()

	if !ok {
		h.metrics.RecordPush(false)
		h.logger.Debug("no live channel for subject, notification dropped",
			zap.String("subject_id", subject.ID))
		return false
	}

	if err := conn.write(websocket.TextMessage, []byte(VerifiedPayload)); err != nil {
		h.metrics.RecordPush(false)
		h.logger.Warn("live channel push failed",
			zap.String("subject_id", subject.ID), zap.Error(err))
		h.Unregister(conn.conn)
		return false
	}

	h.metrics.RecordPush(true)
	return true
}
