package identity

import "context"

// Audit record keys, one last-written entry per key.
const (
	AuditKeyLastAuth        = "saml_last_auth"
	AuditKeyLastAuthRawInfo = "saml_last_auth_raw_info"
	AuditKeyLastAuthExtra   = "saml_last_auth_extra"
)

// AuditSink records raw authentication material for debugging. Sinks are
// fire-and-forget: callers discard errors and an unavailable sink must
// never block the login outcome.
type AuditSink interface {
	Record(ctx context.Context, key, value string) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) Record(context.Context, string, string) error { return nil }
