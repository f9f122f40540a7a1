package saml

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// metadataFetchTimeout bounds the outbound metadata request so a slow IDP
// cannot block the login path indefinitely.
const metadataFetchTimeout = 5 * time.Second

type ServiceProvider struct {
	cfg *Config

	client *http.Client

	mu       sync.Mutex
	cached   *IDPInfo
	cachedAt time.Time
}

// NewServiceProvider creates a new ServiceProvider.
func NewServiceProvider(cfg *Config) (*ServiceProvider, error) {
	const op = "saml.NewServiceProvider"

	if cfg == nil {
		return nil, fmt.Errorf("%s: no provider config provided: %w", op, ErrInvalidParameter)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: insufficient provider config: %w", op, err)
	}

	client := cleanhttp.DefaultPooledClient()
	client.Timeout = metadataFetchTimeout

	return &ServiceProvider{
		cfg:    cfg,
		client: client,
	}, nil
}

// Config returns the service provider config.
func (sp *ServiceProvider) Config() *Config {
	return sp.cfg
}

// SPMetadata is the metadata document this service provider publishes so
// an IDP can be configured against it.
type SPMetadata struct {
	XMLName  xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:metadata EntityDescriptor"`
	EntityID string   `xml:"entityID,attr"`

	SPSSODescriptor SPSSODescriptor
}

type SPSSODescriptor struct {
	XMLName                    xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:metadata SPSSODescriptor"`
	ProtocolSupportEnumeration string   `xml:"protocolSupportEnumeration,attr"`
	AuthnRequestsSigned        bool     `xml:"AuthnRequestsSigned,attr"`
	WantAssertionsSigned       bool     `xml:"WantAssertionsSigned,attr"`

	AssertionConsumerService []IndexedEndpoint
}

type IndexedEndpoint struct {
	XMLName  xml.Name       `xml:"urn:oasis:names:tc:SAML:2.0:metadata AssertionConsumerService"`
	Binding  ServiceBinding `xml:"Binding,attr"`
	Location string         `xml:"Location,attr"`
	Index    int            `xml:"index,attr"`
}

// CreateMetadata creates the metadata XML for the service provider.
func (sp *ServiceProvider) CreateMetadata() *SPMetadata {
	return &SPMetadata{
		EntityID: sp.cfg.EntityID(),
		SPSSODescriptor: SPSSODescriptor{
			ProtocolSupportEnumeration: "urn:oasis:names:tc:SAML:2.0:protocol",
			AuthnRequestsSigned:        false,
			WantAssertionsSigned:       true,
			AssertionConsumerService: []IndexedEndpoint{
				{
					Binding:  ServiceBindingHTTPPost,
					Location: sp.cfg.ACSURL(),
					Index:    1,
				},
			},
		},
	}
}
