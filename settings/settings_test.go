package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/authbridge/saml"
)

func Test_Load_FromEnvironment(t *testing.T) {
	r := require.New(t)

	t.Setenv("SAML_BASE_URL", "http://test.me")
	t.Setenv("SAML_TARGET_URL", "http://test.idp/saml/login")
	t.Setenv("SAML_CERT_FINGERPRINT", "de:ad:be:ef")
	t.Setenv("SAML_REQUEST_METHOD", "POST")
	t.Setenv("SAML_LOG_AUTH", "true")

	cfg, err := load(t.TempDir())
	r.NoError(err)

	r.Equal("http://test.me", cfg.BaseURL.String())
	r.Equal("http://test.idp/saml/login", cfg.SSOURL.String())
	r.Equal("de:ad:be:ef", cfg.CertificateFingerprint)
	r.Equal(saml.RequestBindingPOST, cfg.RequestBinding)
	r.True(cfg.LogAuth)
	r.Equal(saml.DefaultMetadataCacheTTL, cfg.MetadataCacheTTL)
}

func Test_Load_FromConfigFile(t *testing.T) {
	r := require.New(t)

	dir := t.TempDir()
	r.NoError(os.WriteFile(
		filepath.Join(dir, "samlbridge.yaml"),
		[]byte(`
saml_base_url: http://test.me
saml_metadata_url: http://test.idp/saml/metadata
saml_metadata_cache_ttl: 10m
`),
		0o600,
	))

	cfg, err := load(dir)
	r.NoError(err)

	r.Equal("http://test.me", cfg.BaseURL.String())
	r.Equal("http://test.idp/saml/metadata", cfg.MetadataURL.String())
	r.Equal(10*time.Minute, cfg.MetadataCacheTTL)
	r.Equal(saml.RequestBindingGET, cfg.RequestBinding)
}

func Test_Load_InvalidSettings(t *testing.T) {
	r := require.New(t)

	cases := []struct {
		name        string
		env         map[string]string
		expectedErr string
	}{
		{
			name:        "When no base URL is set",
			env:         map[string]string{"SAML_TARGET_URL": "http://test.idp/saml/login"},
			expectedErr: "no base URL provided",
		},
		{
			name: "When no IDP endpoint is set",
			env: map[string]string{
				"SAML_BASE_URL": "http://test.me",
				"SAML_CERT":     "irrelevant",
			},
			expectedErr: "neither SSO URL nor metadata URL set",
		},
		{
			name: "When no trust material is set",
			env: map[string]string{
				"SAML_BASE_URL":   "http://test.me",
				"SAML_TARGET_URL": "http://test.idp/saml/login",
			},
			expectedErr: "no IDP trust material",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			for k, v := range c.env {
				t.Setenv(k, v)
			}

			cfg, err := load(t.TempDir())
			r.Nil(cfg)
			r.ErrorContains(err, c.expectedErr)
		})
	}
}
