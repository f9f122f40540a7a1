package saml_test

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authbridge/saml"
)

func Test_NewServiceProvider(t *testing.T) {
	r := require.New(t)

	validConfig, err := saml.NewConfig("http://test.me", "http://test.idp/saml/login", "")
	r.NoError(err)
	validConfig.Certificate = fakePEM(t)

	cases := []struct {
		name        string
		cfg         *saml.Config
		expectedErr string
	}{
		{
			name: "When a valid config is provided",
			cfg:  validConfig,
		},
		{
			name:        "When an invalid config is provided",
			cfg:         &saml.Config{},
			expectedErr: "saml.NewServiceProvider: insufficient provider config:",
		},
		{
			name:        "When no config is provided",
			cfg:         nil,
			expectedErr: "saml.NewServiceProvider: no provider config provided",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(_ *testing.T) {
			got, err := saml.NewServiceProvider(c.cfg)

			if c.expectedErr != "" {
				r.ErrorContains(err, c.expectedErr)
				return
			}

			r.NoError(err)
			r.NotNil(got)
			r.NotNil(got.Config())
		})
	}
}

func Test_CreateMetadata(t *testing.T) {
	r := require.New(t)

	sp := testServiceProvider(t, nil)

	got := sp.CreateMetadata()

	r.Equal("http://test.me", got.EntityID)
	r.False(got.SPSSODescriptor.AuthnRequestsSigned)
	r.True(got.SPSSODescriptor.WantAssertionsSigned)
	r.Len(got.SPSSODescriptor.AssertionConsumerService, 1)
	r.Equal(saml.ServiceBindingHTTPPost, got.SPSSODescriptor.AssertionConsumerService[0].Binding)
	r.Equal("http://test.me/auth/saml/callback", got.SPSSODescriptor.AssertionConsumerService[0].Location)

	raw, err := xml.Marshal(got)
	r.NoError(err)
	r.Contains(string(raw), "EntityDescriptor")
	r.Contains(string(raw), `entityID="http://test.me"`)
}
