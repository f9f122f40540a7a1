// Package testprovider runs a minimal in-process identity provider for
// tests: it serves IDP metadata over httptest and produces signed SAML
// responses with a generated keypair.
package testprovider

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/hashicorp/go-uuid"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/stretchr/testify/require"
)

// EntityID is the issuer the test provider uses in metadata and
// responses.
const EntityID = "http://test.idp"

const metaTmpl = `<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata" entityID="%s">
  <md:IDPSSODescriptor WantAuthnRequestsSigned="false" protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <md:KeyDescriptor use="signing">
      <ds:KeyInfo xmlns:ds="http://www.w3.org/2000/09/xmldsig#">
        <ds:X509Data>
          <ds:X509Certificate>%s</ds:X509Certificate>
        </ds:X509Data>
      </ds:KeyInfo>
    </md:KeyDescriptor>
    <md:NameIDFormat>urn:oasis:names:tc:SAML:2.0:nameid-format:persistent</md:NameIDFormat>
    <md:SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" Location="%s/saml/login/post"/>
    <md:SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="%s/saml/login/redirect"/>
  </md:IDPSSODescriptor>
</md:EntityDescriptor>`

type TestProvider struct {
	t      *testing.T
	server *httptest.Server

	key     *rsa.PrivateKey
	cert    *x509.Certificate
	certDER []byte
}

func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	r := require.New(t)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	r.NoError(err)

	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test.idp"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	r.NoError(err)

	cert, err := x509.ParseCertificate(certDER)
	r.NoError(err)

	provider := &TestProvider{
		t:       t,
		key:     key,
		cert:    cert,
		certDER: certDER,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/saml/metadata", provider.MetadataHandler)
	mux.HandleFunc("/saml/login/post", provider.LoginHandlerPost)
	mux.HandleFunc("/saml/login/redirect", provider.LoginHandlerRedirect)

	provider.server = httptest.NewServer(mux)

	return provider
}

func (p *TestProvider) Close() {
	p.server.Close()
}

func (p *TestProvider) ServerURL() string {
	return p.server.URL
}

// MetadataURL is the endpoint serving the provider's metadata document.
func (p *TestProvider) MetadataURL() string {
	return p.server.URL + "/saml/metadata"
}

// CertificatePEM returns the signing certificate for static
// configuration.
func (p *TestProvider) CertificatePEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: p.certDER}))
}

// CertificateFingerprint returns the SHA-256 digest of the signing
// certificate, hex encoded.
func (p *TestProvider) CertificateFingerprint() string {
	sum := sha256.Sum256(p.certDER)
	return hex.EncodeToString(sum[:])
}

func (p *TestProvider) MetadataHandler(w http.ResponseWriter, _ *http.Request) {
	certB64 := base64.StdEncoding.EncodeToString(p.certDER)
	fmt.Fprintf(w, metaTmpl, EntityID, certB64, p.server.URL, p.server.URL)
}

func (p *TestProvider) LoginHandlerPost(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "not implemented", http.StatusNotImplemented)
}

func (p *TestProvider) LoginHandlerRedirect(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "not implemented", http.StatusNotImplemented)
}

// ResponseOptions parameterize one generated SAML response.
type ResponseOptions struct {
	// SubjectID becomes the NameID value.
	SubjectID string

	// Attributes maps claim URIs to value sequences.
	Attributes map[string][]string

	// Audience is the SP entity ID the assertion is restricted to.
	Audience string

	// Destination is the SP assertion consumer service URL.
	Destination string

	// InResponseTo optionally echoes an AuthnRequest ID.
	InResponseTo string

	// Expired shifts the assertion Conditions window entirely into the
	// past. The subject confirmation stays fresh so the failure is
	// attributable to the conditions.
	Expired bool

	// Unsigned omits the signature.
	Unsigned bool
}

const samlTimeFormat = "2006-01-02T15:04:05Z"

// SignedResponse builds a SAML response per opts, signs its root element
// with the provider's key (unless Unsigned) and returns it base64
// encoded the way an IDP would post it.
func (p *TestProvider) SignedResponse(t *testing.T, opts ResponseOptions) string {
	t.Helper()
	r := require.New(t)

	doc := etree.NewDocument()
	doc.SetRoot(p.responseElement(t, opts))

	if !opts.Unsigned {
		keyStore := dsig.TLSCertKeyStore(tls.Certificate{
			Certificate: [][]byte{p.certDER},
			PrivateKey:  p.key,
			Leaf:        p.cert,
		})

		signingContext := dsig.NewDefaultSigningContext(keyStore)
		signingContext.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
		r.NoError(signingContext.SetSignatureMethod(dsig.RSASHA256SignatureMethod))

		signed, err := signingContext.SignEnveloped(doc.Root())
		r.NoError(err)
		doc.SetRoot(signed)
	}

	raw, err := doc.WriteToString()
	r.NoError(err)

	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// TamperedResponse signs a response and then flips the NameID value
// without re-signing, producing well-formed XML whose signature no
// longer verifies.
func (p *TestProvider) TamperedResponse(t *testing.T, opts ResponseOptions) string {
	t.Helper()
	r := require.New(t)

	signed := p.SignedResponse(t, opts)

	raw, err := base64.StdEncoding.DecodeString(signed)
	r.NoError(err)

	doc := etree.NewDocument()
	r.NoError(doc.ReadFromBytes(raw))

	nameID := doc.FindElement("//NameID")
	r.NotNil(nameID)
	nameID.SetText(opts.SubjectID + "-tampered")

	out, err := doc.WriteToString()
	r.NoError(err)

	return base64.StdEncoding.EncodeToString([]byte(out))
}

func (p *TestProvider) responseElement(t *testing.T, opts ResponseOptions) *etree.Element {
	t.Helper()
	r := require.New(t)

	now := time.Now().UTC()
	confirmationNotOnOrAfter := now.Add(5 * time.Minute)
	notBefore := now.Add(-5 * time.Minute)
	notOnOrAfter := now.Add(5 * time.Minute)
	if opts.Expired {
		notBefore = now.Add(-10 * time.Minute)
		notOnOrAfter = now.Add(-5 * time.Minute)
	}

	responseID, err := uuid.GenerateUUID()
	r.NoError(err)
	assertionID, err := uuid.GenerateUUID()
	r.NoError(err)

	resp := etree.NewElement("samlp:Response")
	resp.CreateAttr("xmlns:samlp", "urn:oasis:names:tc:SAML:2.0:protocol")
	resp.CreateAttr("xmlns:saml", "urn:oasis:names:tc:SAML:2.0:assertion")
	resp.CreateAttr("ID", "_"+responseID)
	resp.CreateAttr("Version", "2.0")
	resp.CreateAttr("IssueInstant", now.Format(samlTimeFormat))
	resp.CreateAttr("Destination", opts.Destination)
	if opts.InResponseTo != "" {
		resp.CreateAttr("InResponseTo", opts.InResponseTo)
	}

	resp.CreateElement("saml:Issuer").SetText(EntityID)

	status := resp.CreateElement("samlp:Status")
	status.CreateElement("samlp:StatusCode").
		CreateAttr("Value", "urn:oasis:names:tc:SAML:2.0:status:Success")

	assertion := resp.CreateElement("saml:Assertion")
	assertion.CreateAttr("ID", "_"+assertionID)
	assertion.CreateAttr("Version", "2.0")
	assertion.CreateAttr("IssueInstant", now.Format(samlTimeFormat))

	assertion.CreateElement("saml:Issuer").SetText(EntityID)

	subject := assertion.CreateElement("saml:Subject")
	nameID := subject.CreateElement("saml:NameID")
	nameID.CreateAttr("Format", "urn:oasis:names:tc:SAML:2.0:nameid-format:persistent")
	nameID.SetText(opts.SubjectID)

	confirmation := subject.CreateElement("saml:SubjectConfirmation")
	confirmation.CreateAttr("Method", "urn:oasis:names:tc:SAML:2.0:cm:bearer")
	confirmationData := confirmation.CreateElement("saml:SubjectConfirmationData")
	confirmationData.CreateAttr("Recipient", opts.Destination)
	confirmationData.CreateAttr("NotOnOrAfter", confirmationNotOnOrAfter.Format(samlTimeFormat))
	if opts.InResponseTo != "" {
		confirmationData.CreateAttr("InResponseTo", opts.InResponseTo)
	}

	conditions := assertion.CreateElement("saml:Conditions")
	conditions.CreateAttr("NotBefore", notBefore.Format(samlTimeFormat))
	conditions.CreateAttr("NotOnOrAfter", notOnOrAfter.Format(samlTimeFormat))
	conditions.CreateElement("saml:AudienceRestriction").
		CreateElement("saml:Audience").SetText(opts.Audience)

	attrStatement := assertion.CreateElement("saml:AttributeStatement")
	for claim, values := range opts.Attributes {
		attr := attrStatement.CreateElement("saml:Attribute")
		attr.CreateAttr("Name", claim)
		attr.CreateAttr("NameFormat", "urn:oasis:names:tc:SAML:2.0:attrname-format:uri")
		for _, v := range values {
			attr.CreateElement("saml:AttributeValue").SetText(v)
		}
	}

	return resp
}
