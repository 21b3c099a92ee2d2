package interfaces

import (
	"context"

	"github.com/customeros/mailpool/internal/enum"
	"github.com/customeros/mailpool/internal/models"
)

// Session is one live, logged-in protocol connection.
type Session interface {
	Protocol() enum.Protocol
	// Noop is the lightweight round trip used by health checks.
	Noop() error
	// Close logs out and releases the transport. Safe to call more than once.
	Close() error
}

// Connector opens and authenticates a new Session.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

type IMAPSession interface {
	Session
	Select(mailbox string, readOnly bool) error
	// SearchUnseen returns UIDs of messages without \Seen, ascending.
	SearchUnseen() ([]uint32, error)
	FetchEnvelopes(uids []uint32) ([]*models.Envelope, error)
	// FetchMessage downloads and parses a full message. markSeen=false uses BODY.PEEK[].
	// A missing UID yields a not_found error.
	FetchMessage(uid uint32, markSeen bool) (*models.FetchedMessage, error)
}

type SMTPSession interface {
	Session
	Send(ctx context.Context, from string, recipients []string, message []byte) error
}
