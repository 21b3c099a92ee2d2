package enum

type EmailStatus string

const (
	EmailStatusSent   EmailStatus = "sent"
	EmailStatusFailed EmailStatus = "failed"
)

func (t EmailStatus) String() string {
	return string(t)
}

type EmailSecurity string

const (
	EmailSecurityNone     EmailSecurity = "none"
	EmailSecuritySSL      EmailSecurity = "ssl"
	EmailSecurityTLS      EmailSecurity = "tls"
	EmailSecurityStartTLS EmailSecurity = "startTLS"
)

func (t EmailSecurity) String() string {
	return string(t)
}

// Implicit reports whether the connection is wrapped in TLS from the first byte.
func (t EmailSecurity) Implicit() bool {
	return t == EmailSecuritySSL || t == EmailSecurityTLS
}

func (t EmailSecurity) IsValid() bool {
	switch t {
	case EmailSecurityNone, EmailSecuritySSL, EmailSecurityTLS, EmailSecurityStartTLS:
		return true
	}
	return false
}
