package mail

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/customeros/mailpool/interfaces"
	"github.com/customeros/mailpool/internal/enum"
	mailerrors "github.com/customeros/mailpool/internal/errors"
	"github.com/customeros/mailpool/internal/models"
)

type storedMessage struct {
	content *models.EmailContent
	flags   []string
}

type fakeCall struct {
	uid      uint32
	markSeen bool
}

// fakeMailbox is the server side shared by every fake IMAP session.
type fakeMailbox struct {
	mu       sync.Mutex
	messages map[uint32]*storedMessage
	fetches  []fakeCall
	selects  []bool
	failWith error

	active    atomic.Int32
	maxActive atomic.Int32
	delay     time.Duration
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{messages: make(map[uint32]*storedMessage)}
}

func (m *fakeMailbox) add(uid uint32, from, subject string) *models.EmailContent {
	content := &models.EmailContent{
		FromAddress: from,
		Subject:     subject,
		MessageID:   subject + "@example.com",
		BodyText:    "body of " + subject,
		Date:        time.Date(2024, 3, 1, 9, int(uid), 0, 0, time.UTC),
	}
	m.mu.Lock()
	m.messages[uid] = &storedMessage{content: content}
	m.mu.Unlock()
	return content
}

func (m *fakeMailbox) fetchCalls() []fakeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]fakeCall(nil), m.fetches...)
}

func (m *fakeMailbox) enter() func() {
	n := m.active.Add(1)
	for {
		current := m.maxActive.Load()
		if n <= current || m.maxActive.CompareAndSwap(current, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return func() { m.active.Add(-1) }
}

type fakeIMAPSession struct {
	mailbox *fakeMailbox
	closed  atomic.Bool
}

func (s *fakeIMAPSession) Protocol() enum.Protocol { return enum.ProtocolIMAP }
func (s *fakeIMAPSession) Noop() error             { return nil }
func (s *fakeIMAPSession) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeIMAPSession) Select(_ string, readOnly bool) error {
	defer s.mailbox.enter()()
	s.mailbox.mu.Lock()
	defer s.mailbox.mu.Unlock()
	s.mailbox.selects = append(s.mailbox.selects, readOnly)
	return s.mailbox.failWith
}

func (s *fakeIMAPSession) SearchUnseen() ([]uint32, error) {
	defer s.mailbox.enter()()
	s.mailbox.mu.Lock()
	defer s.mailbox.mu.Unlock()
	var uids []uint32
	for uid, message := range s.mailbox.messages {
		if !hasSeen(message.flags) {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (s *fakeIMAPSession) FetchEnvelopes(uids []uint32) ([]*models.Envelope, error) {
	defer s.mailbox.enter()()
	s.mailbox.mu.Lock()
	defer s.mailbox.mu.Unlock()
	envelopes := make([]*models.Envelope, 0, len(uids))
	for _, uid := range uids {
		message, ok := s.mailbox.messages[uid]
		if !ok {
			continue
		}
		envelopes = append(envelopes, &models.Envelope{
			UID:         uid,
			FromAddress: message.content.FromAddress,
			Subject:     message.content.Subject,
			MessageID:   message.content.MessageID,
		})
	}
	return envelopes, nil
}

func (s *fakeIMAPSession) FetchMessage(uid uint32, markSeen bool) (*models.FetchedMessage, error) {
	defer s.mailbox.enter()()
	s.mailbox.mu.Lock()
	defer s.mailbox.mu.Unlock()
	s.mailbox.fetches = append(s.mailbox.fetches, fakeCall{uid: uid, markSeen: markSeen})
	if s.mailbox.failWith != nil {
		return nil, s.mailbox.failWith
	}
	message, ok := s.mailbox.messages[uid]
	if !ok {
		return nil, mailerrors.NewNotFoundError("message not found")
	}
	if markSeen {
		message.flags = append(message.flags, `\Seen`)
	}
	id := uidString(uid)
	content := *message.content
	content.ID = id
	content.UID = uid
	return &models.FetchedMessage{
		Summary: &models.EmailSummary{
			ID:          id,
			UID:         uid,
			FromAddress: content.FromAddress,
			Subject:     content.Subject,
			BodyText:    content.BodyText,
			MessageID:   content.MessageID,
			Date:        content.Date,
			IsRead:      markSeen,
		},
		Content: &content,
	}, nil
}

type sentMessage struct {
	from       string
	recipients []string
	data       []byte
}

type fakeOutbox struct {
	mu       sync.Mutex
	sent     []sentMessage
	failWith error
}

func (o *fakeOutbox) messages() []sentMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]sentMessage(nil), o.sent...)
}

type fakeSMTPSession struct {
	outbox *fakeOutbox
	closed atomic.Bool
}

func (s *fakeSMTPSession) Protocol() enum.Protocol { return enum.ProtocolSMTP }
func (s *fakeSMTPSession) Noop() error             { return nil }
func (s *fakeSMTPSession) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSMTPSession) Send(_ context.Context, from string, recipients []string, message []byte) error {
	s.outbox.mu.Lock()
	defer s.outbox.mu.Unlock()
	if s.outbox.failWith != nil {
		return s.outbox.failWith
	}
	s.outbox.sent = append(s.outbox.sent, sentMessage{from: from, recipients: recipients, data: message})
	return nil
}

type fakeConnector struct {
	dials   atomic.Int32
	connect func() interfaces.Session
}

func (c *fakeConnector) Connect(context.Context) (interfaces.Session, error) {
	c.dials.Add(1)
	return c.connect(), nil
}

func hasSeen(flags []string) bool {
	for _, flag := range flags {
		if flag == `\Seen` {
			return true
		}
	}
	return false
}

func uidString(uid uint32) string {
	return strconv.FormatUint(uint64(uid), 10)
}
