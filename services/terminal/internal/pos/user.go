package pos

import (
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleCashier UserRole = "CASHIER"
)

// MinPINLength is the shortest PIN accepted at user creation.
const MinPINLength = 4

// User is a staff member. The PIN is a shared secret used in lieu of
// username+password for fast login: any matching PIN logs that user in,
// which is why PINs must be unique across users.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	PIN      string    `json:"pin"`
	Role     UserRole  `json:"role"`
}

func (u *User) GetID() uuid.UUID {
	return u.ID
}

func (u *User) ResourceType() string {
	return "user"
}

func (u *User) SetID(id uuid.UUID) {
	u.ID = id
}

func NewUser() *User {
	return &User{
		ID:   apt.GenerateNewID(),
		Role: RoleCashier,
	}
}

func (u *User) EnsureID() {
	if u.ID == uuid.Nil {
		u.ID = apt.GenerateNewID()
	}
}

func (u *User) BeforeCreate() {
	u.EnsureID()
	u.Username = strings.TrimSpace(u.Username)
	u.PIN = strings.TrimSpace(u.PIN)
}
