package render

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/ashureev/twinsync/internal/domain"
)

// ContactSurface is where the sorted contact list is drawn.
type ContactSurface interface {
	RenderContacts(contacts []domain.Contact)
}

// SortContacts orders contacts unread first, then online first, then by
// name ignoring case and accents. The sort is stable and sorts in place.
func SortContacts(contacts []domain.Contact) {
	c := collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics)
	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := contacts[i], contacts[j]
		if a.HasUnread() != b.HasUnread() {
			return a.HasUnread()
		}
		if a.Online() != b.Online() {
			return a.Online()
		}
		return c.CompareString(a.Name, b.Name) < 0
	})
}

// ContactList holds the latest contact snapshot.
type ContactList struct {
	surface  ContactSurface
	contacts []domain.Contact
}

// NewContactList creates a list drawing into surface.
func NewContactList(surface ContactSurface) *ContactList {
	return &ContactList{surface: surface}
}

// Replace discards the current list, sorts snapshot and redraws. It returns
// the total unread count of the snapshot.
func (l *ContactList) Replace(snapshot []domain.Contact) int {
	next := make([]domain.Contact, len(snapshot))
	copy(next, snapshot)
	SortContacts(next)
	l.contacts = next
	l.surface.RenderContacts(next)
	return domain.TotalUnread(next)
}

// Contacts returns the current sorted list.
func (l *ContactList) Contacts() []domain.Contact {
	out := make([]domain.Contact, len(l.contacts))
	copy(out, l.contacts)
	return out
}

// Find looks up a contact by id.
func (l *ContactList) Find(id int64) (domain.Contact, bool) {
	for _, c := range l.contacts {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Contact{}, false
}
