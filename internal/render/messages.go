// Package render reconciles fetched data into the local view.
package render

import "github.com/ashureev/twinsync/internal/domain"

// DefaultNearBottom is the distance from the bottom within which new
// messages pull the view down.
const DefaultNearBottom = 150

// Viewport is the conversation surface a MessageLog draws into.
type Viewport interface {
	// DistanceFromBottom reports how far the view is scrolled up.
	DistanceFromBottom() int
	AppendMessage(msg domain.Message)
	ScrollToBottom()
	ClearMessages()
}

// MessageLog tracks which message ids have been rendered.
type MessageLog struct {
	view      Viewport
	threshold int
	rendered  map[int64]struct{}
	order     []int64
}

// NewMessageLog creates a log drawing into view. A threshold <= 0 is
// treated as unset and uses DefaultNearBottom.
func NewMessageLog(view Viewport, threshold int) *MessageLog {
	if threshold <= 0 {
		threshold = DefaultNearBottom
	}
	return &MessageLog{
		view:      view,
		threshold: threshold,
		rendered:  make(map[int64]struct{}),
	}
}

// Accept appends every message of batch not yet rendered, in arrival order,
// and returns the newly accepted ones. On the initial load, or when the view
// was near the bottom before insertion, it scrolls to the bottom afterwards.
func (l *MessageLog) Accept(batch []domain.Message, initial bool) []domain.Message {
	if len(batch) == 0 {
		return nil
	}

	follow := initial || l.view.DistanceFromBottom() < l.threshold

	var accepted []domain.Message
	for _, m := range batch {
		if _, seen := l.rendered[m.ID]; seen {
			continue
		}
		l.rendered[m.ID] = struct{}{}
		l.order = append(l.order, m.ID)
		l.view.AppendMessage(m)
		accepted = append(accepted, m)
	}

	if len(accepted) > 0 && follow {
		l.view.ScrollToBottom()
	}
	return accepted
}

// Has reports whether id has been rendered.
func (l *MessageLog) Has(id int64) bool {
	_, ok := l.rendered[id]
	return ok
}

// IDs returns the rendered ids in render order.
func (l *MessageLog) IDs() []int64 {
	out := make([]int64, len(l.order))
	copy(out, l.order)
	return out
}

// Len returns the number of rendered messages.
func (l *MessageLog) Len() int {
	return len(l.order)
}

// Reset forgets every rendered message and clears the view.
func (l *MessageLog) Reset() {
	l.rendered = make(map[int64]struct{})
	l.order = nil
	l.view.ClearMessages()
}
