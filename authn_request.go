package saml

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

const SAMLVersion2 = "2.0"

// ServiceBinding identifies a SAML protocol binding, the transport
// mechanism carrying protocol messages. Distinct from the persistent
// identity binding in the identity package.
type ServiceBinding string

const (
	ServiceBindingHTTPPost     ServiceBinding = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
	ServiceBindingHTTPRedirect ServiceBinding = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
)

// DefaultNameIDFormat is the name-identifier format requested of the IDP.
const DefaultNameIDFormat = "urn:oasis:names:tc:SAML:2.0:protocol"

func (c *Config) serviceBinding() ServiceBinding {
	if c.RequestBinding == RequestBindingPOST {
		return ServiceBindingHTTPPost
	}
	return ServiceBindingHTTPRedirect
}

// AuthnRequest is the protocol message initiating authentication. Built
// per login attempt, never persisted.
type AuthnRequest struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol AuthnRequest"`

	ID           string    `xml:",attr"`
	Version      string    `xml:",attr"`
	IssueInstant time.Time `xml:",attr"`
	Destination  string    `xml:",attr"`

	Issuer *Issuer

	ForceAuthn bool `xml:",attr"`
	IsPassive  bool `xml:",attr"`

	AssertionConsumerServiceURL string         `xml:",attr"`
	ProtocolBinding             ServiceBinding `xml:",attr"`

	NameIDPolicy *NameIDPolicy
}

type Issuer struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`

	Value string `xml:",chardata"`
}

// NameIDPolicy constrains the name identifier used to represent the
// requested subject.
type NameIDPolicy struct {
	Format      string `xml:",attr,omitempty"`
	AllowCreate bool   `xml:",attr"`
}

type authnRequestOptions struct {
	clock           clockwork.Clock
	nameIDFormat    string
	forceAuthn      bool
	protocolBinding ServiceBinding
}

func authnRequestOptionsDefault() authnRequestOptions {
	return authnRequestOptions{
		clock:           clockwork.NewRealClock(),
		nameIDFormat:    DefaultNameIDFormat,
		forceAuthn:      false,
		protocolBinding: ServiceBindingHTTPPost,
	}
}

func getAuthnRequestOptions(opt ...Option) authnRequestOptions {
	opts := authnRequestOptionsDefault()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithNameIDFormat overrides the NameIDPolicy format requested of the IDP.
func WithNameIDFormat(f string) Option {
	return func(o interface{}) {
		if o, ok := o.(*authnRequestOptions); ok {
			o.nameIDFormat = f
		}
	}
}

// ForceAuthn tells the identity provider it MUST authenticate the
// presenter directly rather than rely on a previous security context.
func ForceAuthn() Option {
	return func(o interface{}) {
		if o, ok := o.(*authnRequestOptions); ok {
			o.forceAuthn = true
		}
	}
}

// WithProtocolBinding defines the binding the IDP should use when
// returning the Response message. Defaults to HTTP-POST.
func WithProtocolBinding(binding ServiceBinding) Option {
	return func(o interface{}) {
		if o, ok := o.(*authnRequestOptions); ok {
			o.protocolBinding = binding
		}
	}
}

// WithClock changes the clock used when generating requests and when
// validating response time conditions.
func WithClock(clock clockwork.Clock) Option {
	return func(o interface{}) {
		switch opts := o.(type) {
		case *authnRequestOptions:
			opts.clock = clock
		case *parseResponseOptions:
			opts.clock = clock
		}
	}
}

// CreateAuthnRequest creates an authentication request object addressed
// to the resolved IDP SSO endpoint. The request is never passive and its
// assertion-consumer URL is the SP base URL plus the fixed callback path.
//
// Options:
// - WithClock
// - ForceAuthn
// - WithNameIDFormat
// - WithProtocolBinding
func (sp *ServiceProvider) CreateAuthnRequest(
	ctx context.Context,
	id string,
	opt ...Option,
) (*AuthnRequest, error) {
	const op = "saml.ServiceProvider.CreateAuthnRequest"

	if id == "" {
		return nil, fmt.Errorf("%s: no ID provided: %w", op, ErrInvalidParameter)
	}

	opts := getAuthnRequestOptions(opt...)

	idp, err := sp.ResolveIdP(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve IDP destination: %w", op, err)
	}

	ar := &AuthnRequest{
		ID:                          id,
		Version:                     SAMLVersion2,
		IssueInstant:                opts.clock.Now().UTC(),
		Destination:                 idp.SSOURL,
		Issuer:                      &Issuer{Value: sp.cfg.EntityID()},
		ForceAuthn:                  opts.forceAuthn,
		IsPassive:                   false,
		AssertionConsumerServiceURL: sp.cfg.ACSURL(),
		ProtocolBinding:             opts.protocolBinding,
	}

	if opts.nameIDFormat != "" {
		ar.NameIDPolicy = &NameIDPolicy{
			Format:      opts.nameIDFormat,
			AllowCreate: true,
		}
	}

	return ar, nil
}
