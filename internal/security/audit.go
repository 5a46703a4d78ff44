package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

// EventType names what an audit record is about.
type EventType string

const (
	EventLoginSuccess EventType = "login_success"
	EventLoginFailure EventType = "login_failure"
	EventLogout       EventType = "logout"
	EventSessionPrune EventType = "session_prune"
	EventRateLimit    EventType = "rate_limit"
	EventExport       EventType = "export"
	EventHistoryDrop  EventType = "history_delete"
	EventConfigReload EventType = "config_reload"
)

// sessionPrefixLen is how much of a web session token an audit record
// keeps. The full token is a credential.
const sessionPrefixLen = 8

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"type"`
	Session    string            `json:"session,omitempty"`
	RemoteAddr string            `json:"remote_addr,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures NewAuditLogger. Every field is optional.
type AuditLoggerConfig struct {
	Writer   io.Writer // receives JSON lines
	Redactor *Redactor // scrubs Detail and Metadata values
	OnEvent  func(AuditEvent)
	Now      func() time.Time
}

// AuditLogger appends events to the audit trail. A nil *AuditLogger
// discards everything.
type AuditLogger struct {
	cfg AuditLoggerConfig

	mu  sync.Mutex
	enc *json.Encoder
}

// NewAuditLogger builds an AuditLogger from cfg.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := &AuditLogger{cfg: cfg}
	if cfg.Writer != nil {
		l.enc = json.NewEncoder(cfg.Writer)
	}
	return l
}

// Log stamps, scrubs and records event. The caller's Metadata map is left
// untouched.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event = l.sanitize(event)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(event)
	}
	if l.enc != nil {
		_ = l.enc.Encode(event)
	}
}

func (l *AuditLogger) sanitize(e AuditEvent) AuditEvent {
	e.Timestamp = l.cfg.Now()
	if len(e.Session) > sessionPrefixLen {
		e.Session = e.Session[:sessionPrefixLen]
	}
	e.Metadata = maps.Clone(e.Metadata)
	if r := l.cfg.Redactor; r != nil {
		e.Detail = r.Redact(e.Detail)
		for k, v := range e.Metadata {
			e.Metadata[k] = r.Redact(v)
		}
	}
	return e
}
