package saml

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/url"
)

// AuthnRequestRedirect creates an AuthnRequest and encodes it for the
// HTTP-Redirect binding: the payload is carried URL-encoded in the
// SAMLRequest query parameter of the returned redirect URL. Compression
// is applied only when the config enables it.
func (sp *ServiceProvider) AuthnRequestRedirect(
	ctx context.Context,
	relayState string,
	opt ...Option,
) (*url.URL, *AuthnRequest, error) {
	const op = "saml.ServiceProvider.AuthnRequestRedirect"

	requestID, err := sp.cfg.GenerateAuthRequestID()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to generate request ID: %w", op, err)
	}

	authN, err := sp.CreateAuthnRequest(ctx, requestID, opt...)
	if err != nil {
		return nil, nil, err
	}

	payload, err := xml.Marshal(authN)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to marshal request: %w", op, err)
	}

	if sp.cfg.CompressRequest {
		payload, err = deflate(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: failed to deflate/compress request: %w", op, err)
		}
	}

	b64Payload := base64.StdEncoding.EncodeToString(payload)

	redirect, err := url.Parse(authN.Destination)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to parse destination URL: %w", op, err)
	}

	vals := redirect.Query()
	vals.Set("SAMLRequest", b64Payload)

	if relayState != "" {
		vals.Set("RelayState", relayState)
	}

	redirect.RawQuery = vals.Encode()

	return redirect, authN, nil
}

func deflate(payload []byte) ([]byte, error) {
	buf := bytes.Buffer{}

	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}

	if _, err := fw.Write(payload); err != nil {
		fw.Close()
		return nil, err
	}

	if err := fw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
