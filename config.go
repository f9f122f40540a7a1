package saml

import (
	"encoding/pem"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-uuid"
)

// CallbackPath is the fixed path under the SP base URL where the IDP
// posts its authentication response.
const CallbackPath = "/auth/saml/callback"

// DefaultMetadataCacheTTL bounds how long a fetched IDP metadata document
// is reused before it is fetched again.
const DefaultMetadataCacheTTL = 5 * time.Minute

// RequestBinding selects the transport used to deliver the AuthnRequest
// to the IDP.
type RequestBinding string

const (
	RequestBindingGET  RequestBinding = "get"
	RequestBindingPOST RequestBinding = "post"
)

type GenerateAuthRequestIDFunc func() (string, error)

// Config carries the full configuration of the service provider. It is
// immutable once handed to NewServiceProvider; components never read
// ambient global state.
type Config struct {
	// BaseURL is the SP base URL. It serves as the request issuer,
	// the entity ID and the audience expected in assertions. (required)
	BaseURL *url.URL

	// SSOURL is the IDP single-sign-on endpoint. Required unless
	// MetadataURL is set; when both are set, SSOURL overrides the
	// location advertised by the metadata document.
	SSOURL *url.URL

	// MetadataURL is the endpoint the IDP serves its metadata XML
	// document on. (optional)
	MetadataURL *url.URL

	// Certificate is the IDP signing certificate, PEM encoded or raw
	// base64 DER. Used as trust material when metadata is not
	// configured or supplies no certificate.
	Certificate string

	// CertificateFingerprint is a SHA-1 or SHA-256 digest of the IDP
	// signing certificate, hex encoded, optionally colon separated.
	// When set and no certificate is available, the certificate
	// embedded in the response is admitted only if it matches.
	CertificateFingerprint string

	// IDPEntityID is the expected issuer of incoming responses. When
	// metadata is configured the document's entityID takes its place.
	IDPEntityID string

	// RequestBinding selects GET (redirect) or POST delivery of the
	// AuthnRequest. Defaults to GET.
	RequestBinding RequestBinding

	// SPCertificate and SPPrivateKey are the PEM-encoded service
	// provider keypair. Reserved for request signing; both optional.
	SPCertificate string
	SPPrivateKey  string

	// CompressRequest enables deflate compression of the redirect
	// binding payload. Off by default.
	CompressRequest bool

	// LogAuth enables best-effort audit recording of raw responses.
	LogAuth bool

	// MetadataCacheTTL bounds reuse of a fetched metadata document.
	// Defaults to DefaultMetadataCacheTTL.
	MetadataCacheTTL time.Duration

	// GenerateAuthRequestID generates an XSD:ID conform request ID.
	GenerateAuthRequestID GenerateAuthRequestIDFunc
}

// NewConfig creates a new Config for the given SP base URL. The IDP SSO
// target and metadata URL may each be empty, but Validate requires at
// least one of them.
func NewConfig(baseURL, ssoURL, metadataURL string) (*Config, error) {
	const op = "saml.NewConfig"

	if baseURL == "" {
		return nil, fmt.Errorf("%s: no base URL provided: %w", op, ErrInvalidParameter)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base URL: %w", op, err)
	}

	cfg := &Config{
		BaseURL:               base,
		RequestBinding:        RequestBindingGET,
		MetadataCacheTTL:      DefaultMetadataCacheTTL,
		GenerateAuthRequestID: GenerateAuthRequestID,
	}

	if ssoURL != "" {
		cfg.SSOURL, err = url.Parse(ssoURL)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid SSO URL: %w", op, err)
		}
	}

	if metadataURL != "" {
		cfg.MetadataURL, err = url.Parse(metadataURL)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid metadata URL: %w", op, err)
		}
	}

	return cfg, nil
}

// GenerateAuthRequestID generates an auth XSD:ID conform ID.
// A UUID prefixed with an underscore.
func GenerateAuthRequestID() (string, error) {
	newID, err := uuid.GenerateUUID()
	if err != nil {
		return "", err
	}

	// Request IDs have to be xsd:ID, which means they need to start with an
	// underscore or letter, which is not always given for UUIDs.
	return fmt.Sprintf("_%s", newID), nil
}

// EntityID returns the SP entity ID, which doubles as the assertion
// audience.
func (c *Config) EntityID() string {
	return c.BaseURL.String()
}

// ACSURL returns the assertion consumer service URL the IDP responds to.
func (c *Config) ACSURL() string {
	return strings.TrimSuffix(c.BaseURL.String(), "/") + CallbackPath
}

// Validate validates the provided configuration.
func (c *Config) Validate() error {
	const op = "saml.Config.Validate"

	var result *multierror.Error

	if c.BaseURL == nil {
		result = multierror.Append(result, fmt.Errorf("base URL not set: %w", ErrInvalidParameter))
	}

	if c.SSOURL == nil && c.MetadataURL == nil {
		result = multierror.Append(result,
			fmt.Errorf("neither SSO URL nor metadata URL set: %w", ErrInvalidParameter))
	}

	if c.Certificate == "" && c.CertificateFingerprint == "" && c.MetadataURL == nil {
		result = multierror.Append(result,
			fmt.Errorf("no IDP trust material: certificate, fingerprint or metadata URL required: %w",
				ErrInvalidParameter))
	}

	switch c.RequestBinding {
	case RequestBindingGET, RequestBindingPOST:
	default:
		result = multierror.Append(result,
			fmt.Errorf("invalid request binding %q: %w", c.RequestBinding, ErrInvalidParameter))
	}

	if c.SPCertificate != "" {
		if block, _ := pem.Decode([]byte(c.SPCertificate)); block == nil {
			result = multierror.Append(result,
				fmt.Errorf("SP certificate is not valid PEM: %w", ErrInvalidParameter))
		}
	}

	if c.SPPrivateKey != "" {
		if block, _ := pem.Decode([]byte(c.SPPrivateKey)); block == nil {
			result = multierror.Append(result,
				fmt.Errorf("SP private key is not valid PEM: %w", ErrInvalidParameter))
		}
	}

	if c.GenerateAuthRequestID == nil {
		result = multierror.Append(result,
			fmt.Errorf("GenerateAuthRequestID func not provided: %w", ErrInvalidParameter))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
