package valueobjects

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ID is the uuid-backed identifier embedded by every entity id type.
// Value objects are immutable and compare with ==.
type ID struct {
	value string
}

func newID() ID {
	return ID{value: uuid.New().String()}
}

func parseID(kind, s string) (ID, error) {
	if s == "" {
		return ID{}, fmt.Errorf("%s ID cannot be empty", kind)
	}
	if _, err := uuid.Parse(s); err != nil {
		return ID{}, fmt.Errorf("%s ID must be a valid UUID", kind)
	}
	return ID{value: s}, nil
}

// String returns the string representation of the ID
func (id ID) String() string {
	return id.value
}

// IsZero checks if the ID is the zero value
func (id ID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("ID must be a string")
	}
	id.value = string(data[1 : len(data)-1])
	return nil
}

type TitleID struct{ ID }

func NewTitleID() TitleID { return TitleID{newID()} }

func ParseTitleID(s string) (TitleID, error) {
	id, err := parseID("title", s)
	return TitleID{id}, err
}

type IdeaID struct{ ID }

func NewIdeaID() IdeaID { return IdeaID{newID()} }

func ParseIdeaID(s string) (IdeaID, error) {
	id, err := parseID("idea", s)
	return IdeaID{id}, err
}

type PaintingID struct{ ID }

func NewPaintingID() PaintingID { return PaintingID{newID()} }

func ParsePaintingID(s string) (PaintingID, error) {
	id, err := parseID("painting", s)
	return PaintingID{id}, err
}

type ReferenceID struct{ ID }

func NewReferenceID() ReferenceID { return ReferenceID{newID()} }

func ParseReferenceID(s string) (ReferenceID, error) {
	id, err := parseID("reference", s)
	return ReferenceID{id}, err
}

// ReferenceIDStrings converts ids for storage and transport.
func ReferenceIDStrings(ids []ReferenceID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
