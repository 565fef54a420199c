package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is a user's presence.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// User is a participant as returned by the API. Only Status changes after load.
type User struct {
	ID     string `json:"_id" validate:"required"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Status Status `json:"status,omitempty"`
}

// FirstName returns the first word of the display name.
func (u User) FirstName() string {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		return ""
	}
	return strings.Fields(name)[0]
}

// UserRef is a reference to a user that the API may send either as a bare id
// or as a populated object.
type UserRef struct {
	ID   string `json:"_id" validate:"required"`
	Name string `json:"name,omitempty"`
}

// UnmarshalJSON accepts "id" as well as {"_id": "...", "name": "..."}.
func (r *UserRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = UserRef{ID: id}
		return nil
	}

	type plain UserRef
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode user reference: %w", err)
	}
	*r = UserRef(obj)
	return nil
}

// IDSet is a list of user ids decoded from either ids or populated users.
type IDSet []string

// UnmarshalJSON flattens populated user objects to their ids.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var refs []UserRef
	if err := json.Unmarshal(data, &refs); err != nil {
		return fmt.Errorf("decode id set: %w", err)
	}
	out := make(IDSet, 0, len(refs))
	for _, ref := range refs {
		if ref.ID != "" && !out.Contains(ref.ID) {
			out = append(out, ref.ID)
		}
	}
	*s = out
	return nil
}

// Contains reports whether id is in the set.
func (s IDSet) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add returns the set with id appended when missing.
func (s IDSet) Add(id string) IDSet {
	if id == "" || s.Contains(id) {
		return s
	}
	return append(s, id)
}

// Union returns s extended by every id in other that it does not already contain.
func (s IDSet) Union(other IDSet) IDSet {
	for _, id := range other {
		s = s.Add(id)
	}
	return s
}

func validateStatus(status Status) error {
	switch status {
	case StatusOnline, StatusOffline:
		return nil
	default:
		return fmt.Errorf("invalid presence status %q", status)
	}
}
