package main

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingEventDB struct {
	*MemDB
}

func (f *failingEventDB) InsertSecurityEvent(eventType string, userID *int64, ip, userAgent, metadataJSON string) error {
	return errors.New("store unavailable")
}

func TestAuditRecord(t *testing.T) {
	db := NewMemoryDB()
	audit := NewAuditLog(db, zap.NewNop())

	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.RemoteAddr = "203.0.113.9:4123"
	r.Header.Set("User-Agent", "test-agent/1.0")

	uid := int64(42)
	audit.Record(r, eventLoginSuccess, &uid, map[string]interface{}{"email": "user@example.com"})

	events := db.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, eventLoginSuccess, ev.EventType)
	require.NotNil(t, ev.UserID)
	assert.Equal(t, int64(42), *ev.UserID)
	assert.Equal(t, "203.0.113.9", ev.IPAddress)
	assert.Equal(t, "test-agent/1.0", ev.UserAgent)
	assert.Contains(t, ev.MetadataJSON, `"email":"user@example.com"`)
}

func TestAuditUserAgentDefaults(t *testing.T) {
	db := NewMemoryDB()
	audit := NewAuditLog(db, zap.NewNop())

	r := httptest.NewRequest("GET", "/", nil)
	audit.Record(r, eventLogout, nil, nil)

	events := db.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "unknown", events[0].UserAgent)
	assert.Equal(t, "{}", events[0].MetadataJSON)
	assert.Nil(t, events[0].UserID)
}

func TestAuditUserAgentTruncated(t *testing.T) {
	db := NewMemoryDB()
	audit := NewAuditLog(db, zap.NewNop())

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("User-Agent", strings.Repeat("é", 600))

	audit.Record(r, eventLoginFailed, nil, nil)

	events := db.Events()
	require.Len(t, events, 1)
	assert.Equal(t, maxUserAgentLen, len([]rune(events[0].UserAgent)))
}

func TestAuditWriteFailureIsSwallowed(t *testing.T) {
	db := &failingEventDB{MemDB: NewMemoryDB()}
	audit := NewAuditLog(db, zap.NewNop())

	r := httptest.NewRequest("GET", "/", nil)
	assert.NotPanics(t, func() {
		audit.Record(r, eventLoginFailed, nil, nil)
	})
}
