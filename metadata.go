package saml

import (
	"context"
	"crypto/x509"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/russellhaering/gosaml2/types"
)

// IDPInfo is the resolved view of the identity provider a login attempt
// runs against: the SSO endpoint and the trust material used to validate
// response signatures.
type IDPInfo struct {
	SSOURL   string
	EntityID string

	// Certificates are the admitted signing certificates. Empty when
	// only a fingerprint is configured; the validator then pins the
	// certificate carried by the response itself.
	Certificates []*x509.Certificate
}

// ResolveIdP resolves the IDP SSO endpoint and trust material, fetching
// and parsing the remote metadata document when one is configured. A
// locally configured SSO URL overrides the metadata-sourced location, and
// the statically configured certificate is the fallback when metadata
// supplies none. Resolved metadata is cached process-wide for the
// configured TTL; racing refreshes are last-write-wins.
func (sp *ServiceProvider) ResolveIdP(ctx context.Context) (*IDPInfo, error) {
	const op = "saml.ServiceProvider.ResolveIdP"

	if sp.cfg.MetadataURL == nil {
		return sp.staticIDPInfo()
	}

	sp.mu.Lock()
	if sp.cached != nil && sp.cfg.MetadataCacheTTL > 0 &&
		time.Since(sp.cachedAt) < sp.cfg.MetadataCacheTTL {
		info := sp.cached
		sp.mu.Unlock()
		return info, nil
	}
	sp.mu.Unlock()

	ed, err := sp.fetchMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	info, err := sp.idpInfoFromMetadata(ed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sp.mu.Lock()
	sp.cached = info
	sp.cachedAt = time.Now()
	sp.mu.Unlock()

	return info, nil
}

// fetchMetadata fetches the metadata XML document from the IDP. A single
// attempt per login; failures abort the attempt.
func (sp *ServiceProvider) fetchMetadata(ctx context.Context) (*types.EntityDescriptor, error) {
	const op = "saml.ServiceProvider.fetchMetadata"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sp.cfg.MetadataURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create metadata request: %w", op, err)
	}

	res, err := sp.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to fetch metadata: %w: %w", op, ErrMetadataFetch, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected metadata status %d: %w", op, res.StatusCode, ErrMetadataFetch)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read http body: %w: %w", op, ErrMetadataFetch, err)
	}

	var ed types.EntityDescriptor
	if err := xml.Unmarshal(raw, &ed); err != nil {
		return nil, fmt.Errorf("%s: failed to parse metadata XML: %w: %w", op, ErrMetadataFetch, err)
	}

	return &ed, nil
}

func (sp *ServiceProvider) staticIDPInfo() (*IDPInfo, error) {
	const op = "saml.ServiceProvider.staticIDPInfo"

	info := &IDPInfo{
		SSOURL:   sp.cfg.SSOURL.String(),
		EntityID: sp.cfg.IDPEntityID,
	}

	if sp.cfg.Certificate != "" {
		cert, err := parseCert(sp.cfg.Certificate)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid IDP certificate: %w", op, err)
		}
		info.Certificates = []*x509.Certificate{cert}
	}

	return info, nil
}

func (sp *ServiceProvider) idpInfoFromMetadata(ed *types.EntityDescriptor) (*IDPInfo, error) {
	const op = "saml.ServiceProvider.idpInfoFromMetadata"

	if ed.IDPSSODescriptor == nil {
		return nil, fmt.Errorf("%s: no IDPSSODescriptor in metadata: %w", op, ErrMetadataFetch)
	}

	info := &IDPInfo{EntityID: ed.EntityID}

	binding := sp.cfg.serviceBinding()
	for _, sso := range ed.IDPSSODescriptor.SingleSignOnServices {
		if ServiceBinding(sso.Binding) == binding {
			info.SSOURL = sso.Location
			break
		}
	}

	// The locally configured target URL overrides the metadata-sourced one.
	if sp.cfg.SSOURL != nil {
		info.SSOURL = sp.cfg.SSOURL.String()
	}
	if info.SSOURL == "" {
		return nil, fmt.Errorf("%s: no SSO location for binding (%s): %w", op, binding, ErrBindingUnsupported)
	}

	for _, kd := range ed.IDPSSODescriptor.KeyDescriptors {
		switch kd.Use {
		case "", "signing":
			for _, xcert := range kd.KeyInfo.X509Data.X509Certificates {
				parsed, err := parseCert(xcert.Data)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", op, err)
				}
				info.Certificates = append(info.Certificates, parsed)
			}
		}
	}

	// If metadata supplies no certificate, fall back to the statically
	// configured one.
	if len(info.Certificates) == 0 && sp.cfg.Certificate != "" {
		cert, err := parseCert(sp.cfg.Certificate)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid IDP certificate: %w", op, err)
		}
		info.Certificates = []*x509.Certificate{cert}
	}

	return info, nil
}
