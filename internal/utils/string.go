package utils

import (
	"strings"
)

func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}

// AngleBracketed wraps a bare message id as it appears in threading headers.
func AngleBracketed(messageID string) string {
	messageID = NormalizeMessageID(messageID)
	if messageID == "" {
		return ""
	}
	return "<" + messageID + ">"
}

// SplitMessageIDs parses a References / In-Reply-To header value into bare ids.
func SplitMessageIDs(header string) []string {
	var ids []string
	for _, field := range strings.Fields(header) {
		id := NormalizeMessageID(field)
		if id != "" && !IsStringInSlice(id, ids) {
			ids = append(ids, id)
		}
	}
	return ids
}
