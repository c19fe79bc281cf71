// Package lease guards a single shared resource with an ownership token.
// Only the current holder can release it.
package lease

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

// Token identifies one acquisition of a Slot.
type Token string

// Holder describes the current owner of a slot.
type Holder struct {
	Token    Token     `json:"token"`
	Owner    string    `json:"owner"`
	Acquired time.Time `json:"acquired"`
}

// Slot is a single-occupancy lease.
type Slot struct {
	mu     sync.Mutex
	name   string
	holder *Holder
}

// NewSlot creates an empty slot. name appears in busy errors.
func NewSlot(name string) *Slot {
	return &Slot{name: name}
}

// Acquire claims the slot for owner. It fails with SESSION_BUSY if taken.
func (s *Slot) Acquire(owner string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder != nil {
		return "", pferrors.New(pferrors.ErrCodeSessionBusy, s.name+" is busy").
			WithContext("owner", s.holder.Owner).
			WithUserMessage("Another " + s.holder.Owner + " is using the browser. Stop it first.")
	}
	tok := Token(ulid.Make().String())
	s.holder = &Holder{Token: tok, Owner: owner, Acquired: time.Now()}
	return tok, nil
}

// Release frees the slot if tok is the current token. Stale tokens are ignored.
func (s *Slot) Release(tok Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder == nil || s.holder.Token != tok {
		return false
	}
	s.holder = nil
	return true
}

// Current returns a copy of the holder, if any.
func (s *Slot) Current() (Holder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder == nil {
		return Holder{}, false
	}
	return *s.holder, true
}
