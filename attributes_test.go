package saml_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authbridge/saml"
)

func Test_Attributes(t *testing.T) {
	r := require.New(t)

	attrs := saml.Attributes{
		saml.ClaimEmailAddress: {"alice@example.com", "a.smith@example.com"},
		saml.ClaimGivenName:    {},
	}

	vals, err := attrs.Values(saml.ClaimEmailAddress)
	r.NoError(err)
	r.Equal([]string{"alice@example.com", "a.smith@example.com"}, vals)

	first, err := attrs.First(saml.ClaimEmailAddress)
	r.NoError(err)
	r.Equal("alice@example.com", first)

	// A claim present with no values counts as missing.
	_, err = attrs.Values(saml.ClaimGivenName)
	r.ErrorIs(err, saml.ErrMissingAttribute)

	_, err = attrs.First(saml.ClaimSurname)
	r.ErrorIs(err, saml.ErrMissingAttribute)
}

func Test_MapIdentity(t *testing.T) {
	r := require.New(t)

	fullAttrs := func() saml.Attributes {
		return saml.Attributes{
			saml.ClaimGivenName:    {"Alice"},
			saml.ClaimSurname:      {"Smith"},
			saml.ClaimEmailAddress: {"alice@example.com"},
		}
	}

	cases := []struct {
		name        string
		assertion   *saml.Assertion
		want        *saml.IdentityRecord
		expectedErr error
	}{
		{
			name:      "When all required claims are present",
			assertion: &saml.Assertion{SubjectID: "subject-1", Attributes: fullAttrs()},
			want: &saml.IdentityRecord{
				Username:            "alice",
				DisplayName:         "Alice Smith",
				Email:               "alice@example.com",
				EmailValid:          true,
				SkipEmailValidation: true,
			},
		},
		{
			name: "When the email claim is missing",
			assertion: &saml.Assertion{
				SubjectID: "subject-1",
				Attributes: saml.Attributes{
					saml.ClaimGivenName: {"Alice"},
					saml.ClaimSurname:   {"Smith"},
				},
			},
			expectedErr: saml.ErrMissingAttribute,
		},
		{
			name: "When the surname claim is missing",
			assertion: &saml.Assertion{
				SubjectID: "subject-1",
				Attributes: saml.Attributes{
					saml.ClaimGivenName:    {"Alice"},
					saml.ClaimEmailAddress: {"alice@example.com"},
				},
			},
			expectedErr: saml.ErrMissingAttribute,
		},
		{
			name:        "When no assertion is provided",
			expectedErr: saml.ErrInvalidParameter,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(_ *testing.T) {
			got, err := saml.MapIdentity(c.assertion)

			if c.expectedErr != nil {
				r.ErrorIs(err, c.expectedErr)
				return
			}

			r.NoError(err)
			r.Equal(c.want, got)
		})
	}
}

func Test_MapIdentity_UsernameIsEmailLocalPart(t *testing.T) {
	r := require.New(t)

	got, err := saml.MapIdentity(&saml.Assertion{
		SubjectID: "subject-1",
		Attributes: saml.Attributes{
			saml.ClaimGivenName:    {"Bob"},
			saml.ClaimSurname:      {"Jones"},
			saml.ClaimEmailAddress: {"bob.jones+sso@corp.example.com"},
		},
	})
	r.NoError(err)

	r.Equal("bob.jones+sso", got.Username)
}
