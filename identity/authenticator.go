package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/authbridge/saml"
)

type authenticatorOptions struct {
	audit  AuditSink
	logger hclog.Logger
}

func authenticatorOptionsDefault() authenticatorOptions {
	return authenticatorOptions{
		audit:  NopSink{},
		logger: hclog.Default().Named("samlsp"),
	}
}

type AuthenticatorOption func(*authenticatorOptions)

// WithAuditSink sets the sink raw authentication material is recorded to
// when audit logging is enabled.
func WithAuditSink(s AuditSink) AuthenticatorOption {
	return func(o *authenticatorOptions) {
		if s != nil {
			o.audit = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) AuthenticatorOption {
	return func(o *authenticatorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Authenticator is the host-facing surface of the bridge: it consumes
// raw SAML responses and produces authentication outcomes, and persists
// bindings for accounts the host creates.
type Authenticator struct {
	sp     *saml.ServiceProvider
	binder *Binder
	audit  AuditSink
	logger hclog.Logger
}

func NewAuthenticator(sp *saml.ServiceProvider, binder *Binder, opt ...AuthenticatorOption) (*Authenticator, error) {
	const op = "identity.NewAuthenticator"

	switch {
	case sp == nil:
		return nil, fmt.Errorf("%s: missing service provider: %w", op, ErrInvalidParameter)
	case binder == nil:
		return nil, fmt.Errorf("%s: missing binder: %w", op, ErrInvalidParameter)
	}

	opts := authenticatorOptionsDefault()
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}

	return &Authenticator{
		sp:     sp,
		binder: binder,
		audit:  opts.audit,
		logger: opts.logger,
	}, nil
}

// AfterAuthenticate processes one raw SAML response: validate, extract
// identity, resolve the binding and assemble the outcome. Every error
// surfaces as a rejected login; nothing is retried and no binding is
// created on any failure path.
func (a *Authenticator) AfterAuthenticate(
	ctx context.Context,
	rawResponse string,
	opt ...saml.Option,
) (*Outcome, error) {
	const op = "identity.Authenticator.AfterAuthenticate"

	assertion, err := a.sp.ParseResponse(ctx, rawResponse, opt...)
	if err != nil {
		a.logger.Info("rejected SAML login", "reason", err.Error())
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Required claims are checked before any binding lookup.
	rec, err := saml.MapIdentity(assertion)
	if err != nil {
		a.logger.Info("rejected SAML login", "subject_id", assertion.SubjectID, "reason", err.Error())
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if a.sp.Config().LogAuth {
		a.recordAudit(ctx, assertion)
	}

	res, err := a.binder.Resolve(ctx, assertion.SubjectID, rec.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return AssembleOutcome(rec, res), nil
}

// AfterCreateAccount persists the binding for an account the host
// created after an unresolved login, using the subject ID carried in the
// outcome's extra data. Idempotent against a pre-existing binding.
func (a *Authenticator) AfterCreateAccount(ctx context.Context, userID int64, extraData map[string]string) error {
	const op = "identity.Authenticator.AfterCreateAccount"

	subjectID := extraData[ExtraDataSubjectID]
	if subjectID == "" {
		return fmt.Errorf("%s: extra data carries no subject ID: %w", op, ErrInvalidParameter)
	}

	return a.binder.BindNewAccount(ctx, subjectID, userID)
}

// recordAudit is best-effort: sink failures are logged at debug and
// never influence the login outcome.
func (a *Authenticator) recordAudit(ctx context.Context, assertion *saml.Assertion) {
	if err := a.audit.Record(ctx, AuditKeyLastAuth, assertion.RawResponse); err != nil {
		a.logger.Debug("audit record failed", "key", AuditKeyLastAuth, "error", err)
	}

	rawInfo, err := json.Marshal(assertion.Attributes)
	if err == nil {
		if err := a.audit.Record(ctx, AuditKeyLastAuthRawInfo, string(rawInfo)); err != nil {
			a.logger.Debug("audit record failed", "key", AuditKeyLastAuthRawInfo, "error", err)
		}
	}

	extra, err := json.Marshal(map[string]string{ExtraDataSubjectID: assertion.SubjectID})
	if err == nil {
		if err := a.audit.Record(ctx, AuditKeyLastAuthExtra, string(extra)); err != nil {
			a.logger.Debug("audit record failed", "key", AuditKeyLastAuthExtra, "error", err)
		}
	}
}
