package pos

import (
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// Table is a positionally assigned seat group. Tables are created and
// destroyed in bulk when the configured table count changes; a table with a
// non-nil order is occupied.
type Table struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Order *Order `json:"order,omitempty"`
}

func NewTable(id int) Table {
	return Table{ID: id, Name: fmt.Sprintf("Table %d", id)}
}

func (t *Table) Occupied() bool {
	return t.Order != nil
}

// Section partitions the table grid for display and permission filtering.
// It plays no part in synchronization correctness.
type Section struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Visible bool      `json:"visible"`
	Default bool      `json:"default"`
}

func (s *Section) GetID() uuid.UUID {
	return s.ID
}

func (s *Section) ResourceType() string {
	return "section"
}

func (s *Section) SetID(id uuid.UUID) {
	s.ID = id
}

func NewSection() *Section {
	return &Section{ID: apt.GenerateNewID(), Visible: true}
}

func (s *Section) EnsureID() {
	if s.ID == uuid.Nil {
		s.ID = apt.GenerateNewID()
	}
}
