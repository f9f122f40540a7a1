package saml_test

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/base64"
	"encoding/xml"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/authbridge/saml"
)

func testServiceProvider(t *testing.T, edit func(*saml.Config)) *saml.ServiceProvider {
	t.Helper()
	r := require.New(t)

	cfg, err := saml.NewConfig(
		"http://test.me",
		"http://test.idp/saml/login",
		"",
	)
	r.NoError(err)

	cfg.Certificate = fakePEM(t)

	if edit != nil {
		edit(cfg)
	}

	sp, err := saml.NewServiceProvider(cfg)
	r.NoError(err)

	return sp
}

func Test_CreateAuthnRequest(t *testing.T) {
	r := require.New(t)

	sp := testServiceProvider(t, nil)

	now := time.Now().UTC().Truncate(time.Second)
	fakeClock := clockwork.NewFakeClockAt(now)

	cases := []struct {
		name        string
		id          string
		opts        []saml.Option
		check       func(*saml.AuthnRequest)
		expectedErr string
	}{
		{
			name: "With defaults",
			id:   "_1234",
			check: func(got *saml.AuthnRequest) {
				r.Equal("_1234", got.ID)
				r.Equal("2.0", got.Version)
				r.True(got.IssueInstant.Equal(now))
				r.Equal("http://test.idp/saml/login", got.Destination)
				r.Equal("http://test.me", got.Issuer.Value)
				r.Equal("http://test.me/auth/saml/callback", got.AssertionConsumerServiceURL)
				r.Equal(saml.ServiceBindingHTTPPost, got.ProtocolBinding)
				r.False(got.ForceAuthn)
				r.False(got.IsPassive)
				r.Equal(saml.DefaultNameIDFormat, got.NameIDPolicy.Format)
				r.True(got.NameIDPolicy.AllowCreate)
			},
		},
		{
			name: "With ForceAuthn",
			id:   "_1234",
			opts: []saml.Option{saml.ForceAuthn()},
			check: func(got *saml.AuthnRequest) {
				r.True(got.ForceAuthn)
			},
		},
		{
			name: "With a redirect protocol binding",
			id:   "_1234",
			opts: []saml.Option{saml.WithProtocolBinding(saml.ServiceBindingHTTPRedirect)},
			check: func(got *saml.AuthnRequest) {
				r.Equal(saml.ServiceBindingHTTPRedirect, got.ProtocolBinding)
			},
		},
		{
			name: "With an empty name ID format",
			id:   "_1234",
			opts: []saml.Option{saml.WithNameIDFormat("")},
			check: func(got *saml.AuthnRequest) {
				r.Nil(got.NameIDPolicy)
			},
		},
		{
			name:        "When no ID is provided",
			expectedErr: "saml.ServiceProvider.CreateAuthnRequest: no ID provided: invalid parameter",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(_ *testing.T) {
			opts := append([]saml.Option{saml.WithClock(fakeClock)}, c.opts...)

			got, err := sp.CreateAuthnRequest(context.Background(), c.id, opts...)

			if c.expectedErr != "" {
				r.ErrorContains(err, c.expectedErr)
				r.ErrorIs(err, saml.ErrInvalidParameter)
				return
			}

			r.NoError(err)
			c.check(got)
		})
	}
}

func Test_AuthnRequestRedirect(t *testing.T) {
	r := require.New(t)

	sp := testServiceProvider(t, nil)

	redirect, authN, err := sp.AuthnRequestRedirect(context.Background(), "relay-token")
	r.NoError(err)

	r.Equal("test.idp", redirect.Host)
	r.Equal("/saml/login", redirect.Path)

	vals := redirect.Query()
	r.Equal("relay-token", vals.Get("RelayState"))

	payload, err := base64.StdEncoding.DecodeString(vals.Get("SAMLRequest"))
	r.NoError(err)

	var carried saml.AuthnRequest
	r.NoError(xml.Unmarshal(payload, &carried))

	r.Equal(authN.ID, carried.ID)
	r.Equal(authN.Destination, carried.Destination)
	r.Equal("http://test.me", carried.Issuer.Value)
}

func Test_AuthnRequestRedirect_Compressed(t *testing.T) {
	r := require.New(t)

	sp := testServiceProvider(t, func(cfg *saml.Config) {
		cfg.CompressRequest = true
	})

	redirect, authN, err := sp.AuthnRequestRedirect(context.Background(), "")
	r.NoError(err)

	vals := redirect.Query()
	r.Empty(vals.Get("RelayState"))

	deflated, err := base64.StdEncoding.DecodeString(vals.Get("SAMLRequest"))
	r.NoError(err)

	fr := flate.NewReader(bytes.NewReader(deflated))
	payload, err := io.ReadAll(fr)
	r.NoError(err)
	r.NoError(fr.Close())

	var carried saml.AuthnRequest
	r.NoError(xml.Unmarshal(payload, &carried))
	r.Equal(authN.ID, carried.ID)
}

func Test_AuthnRequestPost(t *testing.T) {
	r := require.New(t)

	sp := testServiceProvider(t, nil)

	form, authN, err := sp.AuthnRequestPost(context.Background(), "relay-token")
	r.NoError(err)

	html := string(form)

	r.Contains(html, `action="http://test.idp/saml/login"`)
	r.Contains(html, `name="SAMLRequest"`)
	r.Contains(html, `name="RelayState" value="relay-token"`)
	r.Contains(html, "<noscript>")
	r.Contains(html, "onload")

	// The hidden field must carry the encoded request verbatim.
	payload, err := xml.Marshal(authN)
	r.NoError(err)
	r.Contains(html, base64.StdEncoding.EncodeToString(payload))
}

func Test_AuthnRequestPost_NoRelayState(t *testing.T) {
	r := require.New(t)

	sp := testServiceProvider(t, nil)

	form, _, err := sp.AuthnRequestPost(context.Background(), "")
	r.NoError(err)

	r.False(strings.Contains(string(form), "RelayState"))
}
