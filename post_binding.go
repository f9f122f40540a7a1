package saml

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"text/template"
)

//go:embed authn_request.gohtml
var postBindingTempl string

// AuthnRequestPost creates an AuthnRequest and renders it for the
// HTTP-POST binding: an auto-submitting HTML form targeting the IDP SSO
// URL whose hidden SAMLRequest field carries the base64-encoded request
// verbatim. The form submits on load and falls back to a visible
// Continue button without JavaScript.
func (sp *ServiceProvider) AuthnRequestPost(
	ctx context.Context,
	relayState string,
	opt ...Option,
) ([]byte, *AuthnRequest, error) {
	const op = "saml.ServiceProvider.AuthnRequestPost"

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

	b64Payload := base64.StdEncoding.EncodeToString(payload)

	tmpl := template.Must(
		template.New("post-binding").Parse(postBindingTempl),
	)

	buf := bytes.Buffer{}

	if err := tmpl.Execute(&buf, map[string]string{
		"Destination": authN.Destination,
		"SAMLRequest": b64Payload,
		"RelayState":  relayState,
	}); err != nil {
		return nil, nil, fmt.Errorf("%s: failed to render form: %w", op, err)
	}

	return buf.Bytes(), authN, nil
}

func WritePostBindingRequestHeader(w http.ResponseWriter) {
	w.Header().Add("Content-Type", "text/html")
}
