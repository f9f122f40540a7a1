package saml

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/jonboulle/clockwork"
	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

// Assertion is the validated view of one IDP response: the stable
// subject identifier, the claim attribute bag and the raw response for
// audit purposes. It exists only during processing of one login.
type Assertion struct {
	SubjectID   string
	Attributes  Attributes
	RawResponse string
}

type parseResponseOptions struct {
	clock                            clockwork.Clock
	requestID                        string
	skipSignatureValidation          bool
	skipAssertionConditionValidation bool
}

func parseResponseOptionsDefault() parseResponseOptions {
	return parseResponseOptions{
		clock: clockwork.NewRealClock(),
	}
}

func getParseResponseOptions(opt ...Option) parseResponseOptions {
	opts := parseResponseOptionsDefault()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithRequestID enables matching the response InResponseTo value against
// the given AuthnRequest ID.
func WithRequestID(id string) Option {
	return func(o interface{}) {
		if o, ok := o.(*parseResponseOptions); ok {
			o.requestID = id
		}
	}
}

// InsecureSkipSignatureValidation disables validation of the SAML
// response and its assertions. This option should only be used for
// testing purposes.
func InsecureSkipSignatureValidation() Option {
	return func(o interface{}) {
		if o, ok := o.(*parseResponseOptions); ok {
			o.skipSignatureValidation = true
		}
	}
}

// InsecureSkipAssertionConditionValidation disables validation of the
// assertion conditions within the SAML response. This option should only
// be used for testing purposes.
func InsecureSkipAssertionConditionValidation() Option {
	return func(o interface{}) {
		if o, ok := o.(*parseResponseOptions); ok {
			o.skipAssertionConditionValidation = true
		}
	}
}

// ParseResponse parses and validates a base64-encoded SAML response:
// the XML signature against the configured or metadata-derived trust
// material, the assertion validity window and audience, and the expected
// response issuer. Any validation failure rejects the login; there is no
// partial acceptance.
//
// Options:
// - WithClock
// - WithRequestID
// - InsecureSkipSignatureValidation
// - InsecureSkipAssertionConditionValidation
func (sp *ServiceProvider) ParseResponse(
	ctx context.Context,
	samlResp string,
	opt ...Option,
) (*Assertion, error) {
	const op = "saml.ServiceProvider.ParseResponse"

	switch {
	case isNil(sp):
		return nil, fmt.Errorf("%s: missing service provider: %w", op, ErrInternal)
	case samlResp == "":
		return nil, fmt.Errorf("%s: missing saml response: %w", op, ErrInvalidParameter)
	}

	opts := getParseResponseOptions(opt...)

	idp, err := sp.ResolveIdP(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ip, err := sp.internalParser(idp, opts, samlResp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// This validates the signature of the response and all assertions.
	response, err := ip.ValidateEncodedResponse(samlResp)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to validate encoded response: %w: %w",
			op, ErrInvalidAssertion, err)
	}

	if opts.requestID != "" && response.InResponseTo != opts.requestID {
		return nil, fmt.Errorf(
			"%s: InResponseTo (%s) doesn't match the expected requestID (%s): %w",
			op, response.InResponseTo, opts.requestID, ErrInvalidAssertion,
		)
	}

	if idp.EntityID != "" && response.Issuer != nil && response.Issuer.Value != idp.EntityID {
		return nil, fmt.Errorf("%s: unexpected response issuer (%s): %w",
			op, response.Issuer.Value, ErrInvalidAssertion)
	}

	if len(response.Assertions) == 0 {
		return nil, fmt.Errorf("%s: missing assertions: %w", op, ErrInvalidAssertion)
	}

	assert := response.Assertions[0]

	if !opts.skipAssertionConditionValidation {
		warnings, err := ip.VerifyAssertionConditions(&assert)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidAssertion, err)
		}

		if warnings.InvalidTime {
			return nil, fmt.Errorf("%s: invalid time: %w", op, ErrInvalidAssertion)
		}

		if warnings.NotInAudience {
			return nil, fmt.Errorf("%s: invalid audience: %w", op, ErrInvalidAssertion)
		}
	}

	if idp.EntityID != "" && assert.Issuer != nil && assert.Issuer.Value != idp.EntityID {
		return nil, fmt.Errorf("%s: unexpected assertion issuer (%s): %w",
			op, assert.Issuer.Value, ErrInvalidAssertion)
	}

	if assert.Subject == nil || assert.Subject.NameID == nil {
		return nil, fmt.Errorf("%s: subject missing: %w", op, ErrInvalidAssertion)
	}

	if assert.AttributeStatement == nil {
		return nil, fmt.Errorf("%s: attribute statement missing: %w", op, ErrInvalidAssertion)
	}

	attrs := make(Attributes, len(assert.AttributeStatement.Attributes))
	for _, attr := range assert.AttributeStatement.Attributes {
		for _, val := range attr.Values {
			attrs[attr.Name] = append(attrs[attr.Name], val.Value)
		}
	}

	return &Assertion{
		SubjectID:   assert.Subject.NameID.Value,
		Attributes:  attrs,
		RawResponse: samlResp,
	}, nil
}

// internalParser assembles the gosaml2 service provider used for
// response signature and condition validation.
func (sp *ServiceProvider) internalParser(
	idp *IDPInfo,
	opts parseResponseOptions,
	samlResp string,
) (*saml2.SAMLServiceProvider, error) {
	const op = "saml.ServiceProvider.internalParser"

	certs := idp.Certificates

	// When only a fingerprint is configured, the certificate carried by
	// the response is pinned against it and admitted on match.
	if len(certs) == 0 && !opts.skipSignatureValidation {
		if sp.cfg.CertificateFingerprint == "" {
			return nil, fmt.Errorf("%s: no IDP trust material available: %w", op, ErrInvalidParameter)
		}

		pinned, err := pinResponseCert(samlResp, sp.cfg.CertificateFingerprint)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		certs = []*x509.Certificate{pinned}
	}

	certStore := dsig.MemoryX509CertificateStore{
		Roots: certs,
	}

	return &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      idp.SSOURL,
		IdentityProviderIssuer:      idp.EntityID,
		ServiceProviderIssuer:       sp.cfg.EntityID(),
		AssertionConsumerServiceURL: sp.cfg.ACSURL(),
		AudienceURI:                 sp.cfg.EntityID(),
		IDPCertificateStore:         &certStore,
		SkipSignatureValidation:     opts.skipSignatureValidation,
		Clock:                       dsig.NewFakeClock(opts.clock),
	}, nil
}

// pinResponseCert extracts the X509 certificate embedded in the response
// KeyInfo and admits it only if its SHA-1 or SHA-256 digest matches the
// configured fingerprint.
func pinResponseCert(samlResp, fingerprint string) (*x509.Certificate, error) {
	raw, err := base64.StdEncoding.DecodeString(samlResp)
	if err != nil {
		return nil, fmt.Errorf("cannot decode response: %w: %w", ErrInvalidAssertion, err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("cannot parse response XML: %w: %w", ErrInvalidAssertion, err)
	}

	el := doc.FindElement("//X509Certificate")
	if el == nil {
		return nil, fmt.Errorf("response carries no certificate to match fingerprint against: %w",
			ErrInvalidAssertion)
	}

	cert, err := parseCert(el.Text())
	if err != nil {
		return nil, err
	}

	want := normalizeFingerprint(fingerprint)
	sum1 := sha1.Sum(cert.Raw)
	sum256 := sha256.Sum256(cert.Raw)

	if want != hex.EncodeToString(sum1[:]) && want != hex.EncodeToString(sum256[:]) {
		return nil, fmt.Errorf("certificate fingerprint mismatch: %w", ErrInvalidAssertion)
	}

	return cert, nil
}

func normalizeFingerprint(fp string) string {
	return strings.ToLower(strings.ReplaceAll(fp, ":", ""))
}

var certWhitespace = regexp.MustCompile(`\s+`)

// parseCert parses a certificate given as PEM or as raw base64 DER.
func parseCert(cert string) (*x509.Certificate, error) {
	cert = strings.TrimSpace(cert)

	if strings.HasPrefix(cert, "-----BEGIN") {
		cert = strings.TrimPrefix(cert, "-----BEGIN CERTIFICATE-----")
		cert = strings.TrimSuffix(strings.TrimSpace(cert), "-----END CERTIFICATE-----")
	}

	cert = certWhitespace.ReplaceAllString(cert, "")
	certBytes, err := base64.StdEncoding.DecodeString(cert)
	if err != nil {
		return nil, fmt.Errorf("cannot parse certificate: %w", err)
	}

	parsedCert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		return nil, err
	}

	return parsedCert, nil
}
