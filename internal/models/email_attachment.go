package models

type Attachment struct {
	FileName    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}
