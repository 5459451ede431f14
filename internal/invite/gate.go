package invite

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/atriumhq/atrium/internal/models"
)

// Gate answers whether an email address may ever hold an account, and with
// which role. It is a hard precondition for registration and login; callers
// fail closed with a generic denial so absent emails are indistinguishable
// from wrong passwords.
type Gate interface {
	IsInvited(email string) (bool, error)
	RoleFor(email string) (string, error)
}

// ErrNoRole is returned by RoleFor when the email is not on the allow-list.
var ErrNoRole = errors.New("invite: email has no assigned role")

// Entry is one (email, role) allow-list pair.
type Entry struct {
	Email string
	Role  string
}

// StaticGate is a configuration-backed gate. Lookups are pure and
// case-insensitive; the list never changes at runtime.
type StaticGate struct {
	roles map[string]string
}

// NewStaticGate builds a gate from the configured entries. Blank emails are
// skipped; blank roles default to the standard user role.
func NewStaticGate(entries []Entry) *StaticGate {
	roles := make(map[string]string, len(entries))
	for _, entry := range entries {
		email := normalize(entry.Email)
		if email == "" {
			continue
		}
		role := strings.TrimSpace(entry.Role)
		if role == "" {
			role = models.RoleUser
		}
		roles[email] = role
	}
	return &StaticGate{roles: roles}
}

// IsInvited reports whether the email is on the allow-list.
func (g *StaticGate) IsInvited(email string) (bool, error) {
	_, ok := g.roles[normalize(email)]
	return ok, nil
}

// RoleFor returns the assigned role, or ErrNoRole when absent.
func (g *StaticGate) RoleFor(email string) (string, error) {
	role, ok := g.roles[normalize(email)]
	if !ok {
		return "", ErrNoRole
	}
	return role, nil
}

// Entries exposes the configured list for seeding the database-backed gate.
func (g *StaticGate) Entries() []models.Invitation {
	entries := make([]models.Invitation, 0, len(g.roles))
	for email, role := range g.roles {
		entries = append(entries, models.Invitation{Email: email, Role: role})
	}
	return entries
}

// DatabaseGate reads the allow-list from the invitations table. The table is
// read-only at runtime and seeded from configuration at startup, so the gate
// can move storage without changing any caller contract.
type DatabaseGate struct {
	db *gorm.DB
}

// NewDatabaseGate constructs a gate over the invitations table.
func NewDatabaseGate(db *gorm.DB) (*DatabaseGate, error) {
	if db == nil {
		return nil, errors.New("invite: db is required")
	}
	return &DatabaseGate{db: db}, nil
}

// IsInvited reports whether the email is on the allow-list.
func (g *DatabaseGate) IsInvited(email string) (bool, error) {
	var count int64
	err := g.db.Model(&models.Invitation{}).
		Where("email = ?", normalize(email)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("invite: lookup %w", err)
	}
	return count > 0, nil
}

// RoleFor returns the assigned role, or ErrNoRole when absent.
func (g *DatabaseGate) RoleFor(email string) (string, error) {
	var entry models.Invitation
	err := g.db.Take(&entry, "email = ?", normalize(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNoRole
	}
	if err != nil {
		return "", fmt.Errorf("invite: lookup role: %w", err)
	}
	return entry.Role, nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
