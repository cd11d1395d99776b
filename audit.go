package main

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Security event types.
const (
	eventLoginSuccess       = "login_success"
	eventLoginFailed        = "login_failed"
	eventLoginBlockedStatus = "login_blocked_status"
	eventRegistration       = "registration_success"
	eventLogout             = "logout"
	eventProfileUpdated     = "profile_updated"
)

const maxUserAgentLen = 500

// AuditLog appends security events to the store. Recording is best-effort:
// a write failure is logged and swallowed so an audit outage never fails
// the request that triggered it.
type AuditLog struct {
	db  DB
	log *zap.Logger
}

func NewAuditLog(db DB, log *zap.Logger) *AuditLog {
	return &AuditLog{db: db, log: log}
}

func (l *AuditLog) Record(r *http.Request, eventType string, userID *int64, meta map[string]interface{}) {
	ua := r.UserAgent()
	if ua == "" {
		ua = "unknown"
	}
	if runes := []rune(ua); len(runes) > maxUserAgentLen {
		ua = string(runes[:maxUserAgentLen])
	}

	metaJSON := "{}"
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			metaJSON = string(b)
		} else {
			l.log.Warn("security event metadata not serializable", zap.String("event_type", eventType), zap.Error(err))
		}
	}

	if err := l.db.InsertSecurityEvent(eventType, userID, clientIP(r), ua, metaJSON); err != nil {
		l.log.Error("security event write failed",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
