package saml

import (
	"fmt"
	"strings"
)

// Claim URIs for the identity attributes this service provider requires.
const (
	ClaimGivenName    = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname"
	ClaimSurname      = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname"
	ClaimEmailAddress = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
)

// Attributes maps claim URIs to their ordered value sequences as
// asserted by the IDP.
type Attributes map[string][]string

// Values returns the value sequence for the given claim. A claim that is
// absent or carries no values fails with ErrMissingAttribute; it never
// returns a nil-for-missing result.
func (a Attributes) Values(claim string) ([]string, error) {
	const op = "saml.Attributes.Values"

	vals, ok := a[claim]
	if !ok || len(vals) == 0 {
		return nil, fmt.Errorf("%s: claim %q: %w", op, claim, ErrMissingAttribute)
	}

	return vals, nil
}

// First returns the first value of the given claim.
func (a Attributes) First(claim string) (string, error) {
	vals, err := a.Values(claim)
	if err != nil {
		return "", err
	}
	return vals[0], nil
}

// IdentityRecord is the normalized identity extracted from one validated
// assertion.
type IdentityRecord struct {
	Username    string
	DisplayName string
	Email       string

	// The IDP is the trust authority for email verification, so
	// asserted addresses are taken as valid.
	EmailValid          bool
	SkipEmailValidation bool
}

// MapIdentity extracts the required identity claims from a validated
// assertion. Email is derived first; the username is its local part, the
// substring preceding '@'.
func MapIdentity(assertion *Assertion) (*IdentityRecord, error) {
	const op = "saml.MapIdentity"

	if assertion == nil {
		return nil, fmt.Errorf("%s: missing assertion: %w", op, ErrInvalidParameter)
	}

	email, err := assertion.Attributes.First(ClaimEmailAddress)
	if err != nil {
		return nil, err
	}

	givenName, err := assertion.Attributes.First(ClaimGivenName)
	if err != nil {
		return nil, err
	}

	surname, err := assertion.Attributes.First(ClaimSurname)
	if err != nil {
		return nil, err
	}

	username, _, _ := strings.Cut(email, "@")

	return &IdentityRecord{
		Username:            username,
		DisplayName:         givenName + " " + surname,
		Email:               email,
		EmailValid:          true,
		SkipEmailValidation: true,
	}, nil
}
