// Package session holds the explicitly injected login context the form engine
// reads for placeholder substitution and teacher-mode decisions. A Store is
// set at login and cleared at logout; components receive the Store (or a
// Snapshot of it) at construction instead of reading ambient storage.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-scmform/pkg/model"
)

// UserTypeTeacher is the user type that pins the School selection.
const UserTypeTeacher = "TEACHER"

// ErrNoSession is returned when a value is requested before login.
var ErrNoSession = errors.New("session: not logged in")

// Allocation is one (class, division) pair a teacher is assigned to.
type Allocation struct {
	ClassID    any `json:"classId"`
	DivisionID any `json:"divisionId"`
}

// User describes the acting user.
type User struct {
	ID               any          `json:"id,omitempty"`
	Type             string       `json:"type"`
	SchoolID         any          `json:"schoolId,omitempty"`
	AllocatedClasses []Allocation `json:"allocatedClasses,omitempty"`
}

// IsTeacher reports whether the user type is TEACHER, case-insensitively.
func (u *User) IsTeacher() bool {
	if u == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(u.Type), UserTypeTeacher)
}

// SchoolKey returns the teacher's school id as a comparison string.
func (u *User) SchoolKey() string {
	if u == nil {
		return ""
	}
	return model.Stringify(u.SchoolID)
}

// Snapshot is an immutable view of the current login.
type Snapshot struct {
	AccountID string
	Token     string
	User      *User
}

// LoggedIn reports whether the snapshot carries an account.
func (s Snapshot) LoggedIn() bool {
	return s.AccountID != ""
}

// Store keeps the current session. The zero value is a logged-out store.
type Store struct {
	mu      sync.RWMutex
	current Snapshot
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Set records a login.
func (s *Store) Set(snapshot Snapshot) {
	if s == nil {
		return
	}
	if snapshot.User != nil {
		u := *snapshot.User
		u.AllocatedClasses = append([]Allocation(nil), snapshot.User.AllocatedClasses...)
		snapshot.User = &u
	}
	s.mu.Lock()
	s.current = snapshot
	s.mu.Unlock()
}

// Clear forgets the login.
func (s *Store) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.current = Snapshot{}
	s.mu.Unlock()
}

// Current returns the active snapshot; the zero Snapshot when logged out.
func (s *Store) Current() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// AccountID returns the current account id or ErrNoSession.
func (s *Store) AccountID() (string, error) {
	current := s.Current()
	if !current.LoggedIn() {
		return "", ErrNoSession
	}
	return current.AccountID, nil
}

// User returns the acting user, nil when unknown.
func (s *Store) User() *User {
	return s.Current().User
}

type authBlob struct {
	Token string `json:"token"`
	Data  struct {
		AccountID any    `json:"accountId"`
		Token     string `json:"token"`
		User      *User  `json:"user"`
	} `json:"data"`
	User *User `json:"user"`
}

// ParseAuth decodes the persisted auth payload ({"data": {"accountId": ..}})
// written by the login screen into a Snapshot.
func ParseAuth(raw []byte) (Snapshot, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Snapshot{}, ErrNoSession
	}
	var blob authBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return Snapshot{}, fmt.Errorf("session: decode auth: %w", err)
	}
	snapshot := Snapshot{
		AccountID: model.Stringify(blob.Data.AccountID),
		Token:     firstNonEmpty(blob.Data.Token, blob.Token),
		User:      blob.Data.User,
	}
	if snapshot.User == nil {
		snapshot.User = blob.User
	}
	if !snapshot.LoggedIn() {
		return Snapshot{}, ErrNoSession
	}
	return snapshot, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
