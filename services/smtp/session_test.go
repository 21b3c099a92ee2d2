package smtp

import (
	"context"
	"io"
	"net/textproto"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	mailerrors "github.com/customeros/mailpool/internal/errors"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil, "noop"))

	rejected := classify(&textproto.Error{Code: 550, Msg: "mailbox unavailable"}, "SMTP RCPT command failed")
	assert.Equal(t, mailerrors.KindSend, mailerrors.KindOf(rejected))
	assert.False(t, mailerrors.IsConnectionError(rejected))

	dropped := classify(io.EOF, "SMTP DATA command failed")
	assert.Equal(t, mailerrors.KindConnectionFailure, mailerrors.KindOf(dropped))
	assert.True(t, mailerrors.IsConnectionError(dropped))
}

func TestIsProtocolError(t *testing.T) {
	assert.True(t, isProtocolError(errors.Wrap(&textproto.Error{Code: 451, Msg: "try later"}, "mail")))
	assert.False(t, isProtocolError(io.ErrUnexpectedEOF))
}

func TestCommandDeadline(t *testing.T) {
	deadline := commandDeadline(context.Background(), time.Minute)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	deadline = commandDeadline(ctx, time.Minute)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
}
