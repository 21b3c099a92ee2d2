package enum

type Protocol string

const (
	ProtocolIMAP Protocol = "imap"
	ProtocolSMTP Protocol = "smtp"
)

func (p Protocol) String() string {
	return string(p)
}

func (p Protocol) IsValid() bool {
	return p == ProtocolIMAP || p == ProtocolSMTP
}

// Protocols lists every pooled protocol in a stable order.
func Protocols() []Protocol {
	return []Protocol{ProtocolIMAP, ProtocolSMTP}
}
