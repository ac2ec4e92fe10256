package twofactor

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"echoshop/database"
	sessionModel "echoshop/models/session"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestSessionCreate(t *testing.T) {
	m := NewSessionManager(testDB(t))

	before := time.Now()
	sess, err := m.Create(7, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, sess.SessionToken)
	assert.False(t, sess.Verified)
	assert.Equal(t, uint(7), sess.UserID)
	assert.WithinDuration(t, before.Add(SessionLifetime), sess.ExpiresAt, 2*time.Second)
}

func TestSessionCreateWithAction(t *testing.T) {
	m := NewSessionManager(testDB(t))

	action := sessionModel.ActionDeleteProduct
	context := "product 42"
	sess, err := m.Create(7, sessionModel.PurposeCriticalAction, &action, &context)
	require.NoError(t, err)

	require.NotNil(t, sess.ActionType)
	assert.Equal(t, sessionModel.ActionDeleteProduct, *sess.ActionType)
	require.NotNil(t, sess.ActionContext)
	assert.Equal(t, "product 42", *sess.ActionContext)
}

func TestSessionTokensAreUnique(t *testing.T) {
	m := NewSessionManager(testDB(t))

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		sess, err := m.Create(1, sessionModel.PurposeLogin, nil, nil)
		require.NoError(t, err)
		assert.False(t, seen[sess.SessionToken])
		seen[sess.SessionToken] = true
	}
}

func TestSessionGetByToken(t *testing.T) {
	m := NewSessionManager(testDB(t))

	sess, err := m.Create(3, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	found, err := m.GetByToken(sess.SessionToken)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, sess.ID, found.ID)

	missing, err := m.GetByToken("no-such-token")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMarkVerifiedIsSingleUse(t *testing.T) {
	m := NewSessionManager(testDB(t))

	sess, err := m.Create(3, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	ok, err := m.MarkVerified(sess.SessionToken)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second call fails and does not alter state
	ok, err = m.MarkVerified(sess.SessionToken)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := m.GetByToken(sess.SessionToken)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Verified)
}

func TestMarkVerifiedRejectsExpired(t *testing.T) {
	db := testDB(t)
	m := NewSessionManager(db)

	sess, err := m.Create(3, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	require.NoError(t, db.Model(&sessionModel.ChallengeSession{}).
		Where("id = ?", sess.ID).
		Update("expires_at", time.Now().Add(-time.Second)).Error)

	ok, err := m.MarkVerified(sess.SessionToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionExpiryBoundary(t *testing.T) {
	expiry := time.Now()
	sess := &sessionModel.ChallengeSession{ExpiresAt: expiry}

	// Exactly at the expiry instant counts as expired
	assert.True(t, sess.IsExpired(expiry))
	assert.True(t, sess.IsExpired(expiry.Add(time.Nanosecond)))
	assert.False(t, sess.IsExpired(expiry.Add(-time.Nanosecond)))
}

func TestPurgeExpired(t *testing.T) {
	db := testDB(t)
	m := NewSessionManager(db)

	live, err := m.Create(1, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)
	stale, err := m.Create(1, sessionModel.PurposeLogin, nil, nil)
	require.NoError(t, err)

	require.NoError(t, db.Model(&sessionModel.ChallengeSession{}).
		Where("id = ?", stale.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	require.NoError(t, m.PurgeExpired())

	found, err := m.GetByToken(live.SessionToken)
	require.NoError(t, err)
	assert.NotNil(t, found)

	gone, err := m.GetByToken(stale.SessionToken)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSessionMatchesAction(t *testing.T) {
	action := sessionModel.ActionDeleteProduct
	sess := &sessionModel.ChallengeSession{
		UserID:     5,
		Purpose:    sessionModel.PurposeCriticalAction,
		ActionType: &action,
	}

	assert.True(t, sess.MatchesAction(5, sessionModel.PurposeCriticalAction, sessionModel.ActionDeleteProduct))
	assert.False(t, sess.MatchesAction(6, sessionModel.PurposeCriticalAction, sessionModel.ActionDeleteProduct))
	assert.False(t, sess.MatchesAction(5, sessionModel.PurposeLogin, sessionModel.ActionDeleteProduct))
	assert.False(t, sess.MatchesAction(5, sessionModel.PurposeCriticalAction, sessionModel.ActionBulkDelete))
}
