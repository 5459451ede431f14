package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/atriumhq/atrium/internal/models"
	"github.com/atriumhq/atrium/pkg/crypto"
)

// testClock is a controllable time source shared by service tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword("correct horse battery")
	require.NoError(t, err)

	user := &models.User{
		Email:       email,
		DisplayName: "Test User",
		Password:    hash,
		Role:        models.RoleUser,
		IsActive:    true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
