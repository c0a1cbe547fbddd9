package album

import (
	"time"

	kit "albumbot/internal/transport"
)

// Sender identifies who submitted an item.
type Sender struct {
	ID       int64
	Name     string
	Username string // without the leading @, may be empty
}

// MediaItem is an immutable record of one accumulated attachment. FileID is
// an opaque re-send handle; the content behind it is never read back or
// validated here.
type MediaItem struct {
	Kind        kit.MediaKind
	FileID      string
	DisplayName string
	SizeBytes   int64
	Annotation  string // sender-supplied caption, may be empty
	Sender      Sender
	ReceivedAt  time.Time
}

// Batch is the unit of delivery: a run of groupable items up to the group
// size cap, or exactly one singular item. A composed caption, when present,
// rides on the first item (only one caption is visible per album).
type Batch struct {
	Items []MediaItem
}

func (b Batch) Groupable() bool {
	return len(b.Items) > 0 && b.Items[0].Kind.Groupable()
}
