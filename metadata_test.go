package saml_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/authbridge/saml"
	testprovider "github.com/authbridge/saml/test"
)

func Test_ResolveIdP_Metadata(t *testing.T) {
	r := require.New(t)

	tp := testprovider.StartTestProvider(t)
	defer tp.Close()

	cases := []struct {
		name    string
		edit    func(*saml.Config)
		wantSSO string
	}{
		{
			name:    "With the default GET request binding",
			wantSSO: tp.ServerURL() + "/saml/login/redirect",
		},
		{
			name: "With the POST request binding",
			edit: func(cfg *saml.Config) {
				cfg.RequestBinding = saml.RequestBindingPOST
			},
			wantSSO: tp.ServerURL() + "/saml/login/post",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(_ *testing.T) {
			cfg, err := saml.NewConfig("http://test.me", "", tp.MetadataURL())
			r.NoError(err)
			if c.edit != nil {
				c.edit(cfg)
			}

			sp, err := saml.NewServiceProvider(cfg)
			r.NoError(err)

			idp, err := sp.ResolveIdP(context.Background())
			r.NoError(err)

			r.Equal(testprovider.EntityID, idp.EntityID)
			r.Equal(c.wantSSO, idp.SSOURL)
			r.Len(idp.Certificates, 1)
		})
	}
}

func Test_ResolveIdP_SSOURLOverride(t *testing.T) {
	r := require.New(t)

	tp := testprovider.StartTestProvider(t)
	defer tp.Close()

	cfg, err := saml.NewConfig("http://test.me", "http://override.idp/login", tp.MetadataURL())
	r.NoError(err)

	sp, err := saml.NewServiceProvider(cfg)
	r.NoError(err)

	idp, err := sp.ResolveIdP(context.Background())
	r.NoError(err)

	// The configured target URL wins over the metadata-sourced location,
	// while entity ID and trust material still come from the document.
	r.Equal("http://override.idp/login", idp.SSOURL)
	r.Equal(testprovider.EntityID, idp.EntityID)
	r.Len(idp.Certificates, 1)
}

func Test_ResolveIdP_Caching(t *testing.T) {
	r := require.New(t)

	tp := testprovider.StartTestProvider(t)
	defer tp.Close()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits++
		tp.MetadataHandler(w, req)
	}))
	defer srv.Close()

	newSP := func(ttl time.Duration) *saml.ServiceProvider {
		cfg, err := saml.NewConfig("http://test.me", "", srv.URL)
		r.NoError(err)
		cfg.MetadataCacheTTL = ttl

		sp, err := saml.NewServiceProvider(cfg)
		r.NoError(err)
		return sp
	}

	t.Run("Within the TTL the document is fetched once", func(_ *testing.T) {
		hits = 0
		sp := newSP(time.Minute)

		_, err := sp.ResolveIdP(context.Background())
		r.NoError(err)
		_, err = sp.ResolveIdP(context.Background())
		r.NoError(err)

		r.Equal(1, hits)
	})

	t.Run("An expired cache entry is refreshed", func(_ *testing.T) {
		hits = 0
		sp := newSP(time.Nanosecond)

		_, err := sp.ResolveIdP(context.Background())
		r.NoError(err)

		time.Sleep(time.Millisecond)

		_, err = sp.ResolveIdP(context.Background())
		r.NoError(err)

		r.Equal(2, hits)
	})
}

func Test_ResolveIdP_FetchFailures(t *testing.T) {
	r := require.New(t)

	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "When the metadata endpoint errors",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", http.StatusInternalServerError)
			},
		},
		{
			name: "When the metadata document is not XML",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte("{}"))
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(_ *testing.T) {
			srv := httptest.NewServer(c.handler)
			defer srv.Close()

			cfg, err := saml.NewConfig("http://test.me", "", srv.URL)
			r.NoError(err)

			sp, err := saml.NewServiceProvider(cfg)
			r.NoError(err)

			idp, err := sp.ResolveIdP(context.Background())
			r.Nil(idp)
			r.ErrorIs(err, saml.ErrMetadataFetch)
		})
	}
}

func Test_ResolveIdP_Static(t *testing.T) {
	r := require.New(t)

	cfg, err := saml.NewConfig("http://test.me", "http://test.idp/saml/login", "")
	r.NoError(err)
	cfg.CertificateFingerprint = "de:ad:be:ef"
	cfg.IDPEntityID = "http://test.idp"

	sp, err := saml.NewServiceProvider(cfg)
	r.NoError(err)

	idp, err := sp.ResolveIdP(context.Background())
	r.NoError(err)

	r.Equal("http://test.idp/saml/login", idp.SSOURL)
	r.Equal("http://test.idp", idp.EntityID)

	// Fingerprint-only trust carries no certificates up front; the
	// validator pins the response-embedded certificate instead.
	r.Empty(idp.Certificates)
}
