package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// Message is an adapter-neutral inbound message. A media message may carry a
// caption alongside the attachment.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromName     string
	FromUsername string
	Text         string
	Caption      string
	Media        *InboundMedia
	IsGroup      bool
}

// MediaKind is the closed set of media kinds the bot accepts.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
	MediaAnimation MediaKind = "animation"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
)

// Groupable reports whether the destination can render this kind inside a
// multi-item album. Everything else must be sent as its own message.
func (k MediaKind) Groupable() bool {
	return k == MediaPhoto || k == MediaVideo
}

// InboundMedia describes an already-uploaded attachment. FileID is an opaque
// re-send handle; the core never downloads or validates the content.
type InboundMedia struct {
	Kind      MediaKind
	FileID    string
	UniqueID  string
	FileName  string // display name; the adapter derives a fallback when absent
	SizeBytes int64  // 0 when the platform does not report a size
}

// OutMedia is one element of an outbound send. Caption is only honored on
// the first element of an album (platform convention).
type OutMedia struct {
	Kind    MediaKind
	FileID  string
	Caption string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool

	// ReplyKeyboard, when non-empty, attaches a resized reply keyboard with
	// the given rows of button labels. RemoveKeyboard clears any keyboard.
	ReplyKeyboard  [][]string
	RemoveKeyboard bool
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)

	// SendAlbum sends 1..10 groupable items as one visual unit. It fails as
	// a unit on transport error.
	SendAlbum(ctx context.Context, to ChatTarget, items []OutMedia, opt *SendOptions) error

	// SendMedia sends exactly one item of any kind.
	SendMedia(ctx context.Context, to ChatTarget, item OutMedia, opt *SendOptions) error
}
