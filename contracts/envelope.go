package contracts

// Envelope wraps an application payload for transport between routers.
// It is immutable once built; ownership passes to the serializer and
// connector for transmission.
type Envelope struct {
	// ID uniquely identifies this envelope for the lifetime of the
	// sending router's process.
	ID string `json:"id"`

	// ReplyTo carries the correlation id of the request this envelope
	// replies to. Empty means this envelope is not a reply.
	ReplyTo string `json:"replyTo,omitempty"`

	// ReplyOn names the destination on which replies to this envelope
	// should be published.
	ReplyOn Destination `json:"replyOn"`

	// From is the name of the sending router.
	From string `json:"from"`

	// To is an optional recipient hint.
	To string `json:"to,omitempty"`

	// Message is the opaque application payload.
	Message []byte `json:"message"`
}

// IsReply reports whether this envelope correlates to an earlier request.
func (e *Envelope) IsReply() bool {
	return e.ReplyTo != ""
}
