package imap

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/customeros/mailpool/config"
	"github.com/customeros/mailpool/internal/enum"
	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/logger"
	"github.com/customeros/mailpool/internal/models"
)

const logoutTimeout = 5 * time.Second

// Session is a logged-in IMAP client lent out by the pool.
type Session struct {
	client *client.Client
	cfg    *config.ImapConfig
	log    logger.Logger

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newSession(c *client.Client, cfg *config.ImapConfig, log logger.Logger) *Session {
	return &Session{client: c, cfg: cfg, log: log}
}

func (s *Session) Protocol() enum.Protocol {
	return enum.ProtocolIMAP
}

func (s *Session) Noop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.client.Timeout = s.cfg.CommandTimeout
	err := s.client.Noop()
	s.client.Timeout = 0
	return s.classify(err, "imap noop failed")
}

// Close logs out, waiting at most a few seconds before dropping the transport.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- s.client.Logout()
			close(done)
		}()

		select {
		case err := <-done:
			if err != nil && err != client.ErrAlreadyLoggedOut {
				s.closeErr = err
			}
		case <-ctx.Done():
			s.log.Warn("IMAP logout timed out, terminating connection")
			s.closeErr = s.client.Terminate()
		}
	})
	return s.closeErr
}

func (s *Session) Select(mailbox string, readOnly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.client.Timeout = s.cfg.CommandTimeout
	_, err := s.client.Select(mailbox, readOnly)
	s.client.Timeout = 0
	if err != nil {
		return s.classify(err, "failed to select mailbox "+mailbox)
	}
	return nil
}

func (s *Session) SearchUnseen() ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	s.client.Timeout = s.cfg.CommandTimeout
	uids, err := s.client.UidSearch(criteria)
	s.client.Timeout = 0
	if err != nil {
		return nil, s.classify(err, "failed to search unseen messages")
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (s *Session) FetchEnvelopes(uids []uint32) ([]*models.Envelope, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
	}

	var envelopes []*models.Envelope
	err := s.fetch(seqSet, items, func(msg *imap.Message) {
		envelopes = append(envelopes, envelopeFromMessage(msg))
	})
	if err != nil {
		return nil, s.classify(err, "failed to fetch envelopes")
	}

	sort.Slice(envelopes, func(i, j int) bool { return envelopes[i].UID < envelopes[j].UID })
	return envelopes, nil
}

// FetchMessage downloads one full message. With markSeen=false the body is
// fetched with BODY.PEEK[] so the \Seen flag is left untouched.
func (s *Session) FetchMessage(uid uint32, markSeen bool) (*models.FetchedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	section := &imap.BodySectionName{Peek: !markSeen}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
		section.FetchItem(),
	}

	var found *imap.Message
	var raw []byte
	var readErr error
	err := s.fetch(seqSet, items, func(msg *imap.Message) {
		if msg.Uid != uid || found != nil {
			return
		}
		found = msg
		if literal := msg.GetBody(section); literal != nil {
			raw, readErr = io.ReadAll(literal)
		}
	})
	if err != nil {
		return nil, s.classify(err, "failed to fetch message")
	}
	if found == nil {
		return nil, mailerrors.NewNotFoundError("message not found").With("uid", uid)
	}
	if readErr != nil {
		return nil, s.classify(readErr, "failed to read message body")
	}
	if len(raw) == 0 {
		return nil, mailerrors.Newf(mailerrors.KindInternal, "message %d has no body", uid)
	}

	return parseMessage(found, raw, markSeen)
}

// fetch runs a UID FETCH and hands each message to handle as it arrives.
func (s *Session) fetch(seqSet *imap.SeqSet, items []imap.FetchItem, handle func(*imap.Message)) error {
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	s.client.Timeout = s.cfg.CommandTimeout
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	for msg := range messages {
		handle(msg)
	}
	s.client.Timeout = 0

	return <-done
}

// classify marks transport failures and logged-out clients as connection
// failures so the pool discards the session.
func (s *Session) classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if s.client.State() == imap.LogoutState || mailerrors.IsNetworkError(err) {
		return mailerrors.NewConnectionFailureError(err, message)
	}
	return mailerrors.Wrap(mailerrors.KindInternal, err, message)
}
