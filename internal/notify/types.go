// Package notify renders normalized telemetry records into webhook notification
// documents and delivers them to the configured sink. The document format is
// the Discord-compatible embed schema: a content line plus one embed with an
// ordered field list, color marker, and optional out-of-band attachment
// reference.
package notify

// WebhookPayload is the top-level structure for a webhook message.
type WebhookPayload struct {
	Username string  `json:"username,omitempty"`
	Content  string  `json:"content"`
	Embeds   []Embed `json:"embeds"`
}

// Embed is the structured notification document carried in a webhook message.
type Embed struct {
	Title     string      `json:"title"`
	Color     int         `json:"color"` // Decimal color code
	Fields    []Field     `json:"fields"`
	Image     *EmbedImage `json:"image,omitempty"`
	Footer    *Footer     `json:"footer,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// Field is a named display value within an embed. Field order is fixed and
// position-stable so automated consumers can rely on it.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedImage references an image by URL. For attachments the URL uses the
// attachment:// scheme, tying the document to the file part delivered
// alongside it; raw bytes never travel inside the document.
type EmbedImage struct {
	URL string `json:"url"`
}

// Footer is the embed footer.
type Footer struct {
	Text string `json:"text"`
}
