package pool

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/customeros/mailpool/interfaces"
	"github.com/customeros/mailpool/internal/enum"
	mailerrors "github.com/customeros/mailpool/internal/errors"
)

// PooledConnection wraps one live protocol session owned by the pool.
// Callers hold it between Acquire and Release and must not keep it afterwards.
type PooledConnection struct {
	ID        string
	Kind      enum.Protocol
	CreatedAt time.Time

	session interfaces.Session
	owner   *kindPool

	// guarded by owner.mu
	lastUsed    time.Time
	lastChecked time.Time
	inUse       bool
	failures    int

	closeOnce sync.Once
	closeErr  error
}

func newPooledConnection(owner *kindPool, session interfaces.Session, now time.Time) *PooledConnection {
	return &PooledConnection{
		ID:        uuid.New().String(),
		Kind:      owner.kind,
		CreatedAt: now,
		session:   session,
		owner:     owner,
		lastUsed:  now,
	}
}

func (c *PooledConnection) Session() interfaces.Session {
	return c.session
}

func (c *PooledConnection) IMAP() (interfaces.IMAPSession, error) {
	session, ok := c.session.(interfaces.IMAPSession)
	if !ok {
		return nil, mailerrors.Newf(mailerrors.KindInternal, "connection %s is not an imap session", c.ID)
	}
	return session, nil
}

func (c *PooledConnection) SMTP() (interfaces.SMTPSession, error) {
	session, ok := c.session.(interfaces.SMTPSession)
	if !ok {
		return nil, mailerrors.Newf(mailerrors.KindInternal, "connection %s is not an smtp session", c.ID)
	}
	return session, nil
}

func (c *PooledConnection) close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.session.Close()
	})
	return c.closeErr
}
