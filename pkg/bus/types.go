package bus

import (
	"errors"
	"time"
)

// ErrMalformedMessage marks an inbound message that is missing fields the
// engine cannot work without. Such messages are dropped before any session
// state is touched.
var ErrMalformedMessage = errors.New("malformed inbound message")

// InboundMessage is a platform event normalized by a channel adapter.
// Channel names the platform ("telegram", "slack", ...), ChatID the
// conversation destination on that platform. SessionKey is "channel:chat_id"
// and identifies the dialogue session.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	ChatID     string            `json:"chat_id"`
	SenderID   string            `json:"sender_id"`
	Content    string            `json:"content"`
	MessageID  string            `json:"message_id"`
	Timestamp  time.Time         `json:"timestamp"`
	FileName   string            `json:"file_name,omitempty"`
	FileMime   string            `json:"file_mime,omitempty"`
	FileBody   []byte            `json:"file_body,omitempty"`
	Email      string            `json:"email,omitempty"`
	SessionKey string            `json:"session_key"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// HasFile reports whether the message carries an attachment.
func (m InboundMessage) HasFile() bool {
	return m.FileName != "" || len(m.FileBody) > 0
}

// Validate rejects messages that lack the fields every turn depends on:
// destination, sender, a timestamp, a message id, and either text or a file.
func (m InboundMessage) Validate() error {
	switch {
	case m.ChatID == "":
		return errors.Join(ErrMalformedMessage, errors.New("missing chat id"))
	case m.SenderID == "":
		return errors.Join(ErrMalformedMessage, errors.New("missing sender id"))
	case m.MessageID == "":
		return errors.Join(ErrMalformedMessage, errors.New("missing message id"))
	case m.Timestamp.IsZero():
		return errors.Join(ErrMalformedMessage, errors.New("missing timestamp"))
	case m.Content == "" && !m.HasFile():
		return errors.Join(ErrMalformedMessage, errors.New("no text and no file"))
	}
	return nil
}

// OutboundKind selects the adapter delivery path for an outbound message.
type OutboundKind string

const (
	OutboundText        OutboundKind = "text"
	OutboundInteractive OutboundKind = "interactive"
	OutboundFile        OutboundKind = "file"
)

// OutboundMessage is a reply handed back to a channel adapter.
// For OutboundFile, FilePath points at a local temp file the adapter uploads
// and removes; Content carries the caption.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Kind     OutboundKind      `json:"kind"`
	Content  string            `json:"content"`
	FileName string            `json:"file_name,omitempty"`
	FilePath string            `json:"file_path,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
