package utils

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const messageIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateMessageID returns a bracketed RFC 5322 Message-ID for domain.
// metadata, when set, is folded into the local part as a short hash.
func GenerateMessageID(domain, metadata string) string {
	id, err := gonanoid.Generate(messageIDAlphabet, 12)
	if err != nil {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	if domain == "" {
		domain = "localhost"
	}

	var hashComponent string
	if metadata != "" {
		hash := sha256.Sum256([]byte(metadata))
		hashComponent = fmt.Sprintf(".%x", hash[:4])
	}

	localPart := fmt.Sprintf("%d.%s%s", time.Now().UnixMicro(), id, hashComponent)
	return fmt.Sprintf("<%s@%s>", localPart, domain)
}
