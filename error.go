package saml

import "errors"

var (
	ErrInternal           = errors.New("internal error")
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrBindingUnsupported = errors.New("binding unsupported by the IDP")

	// ErrMetadataFetch indicates that the IDP metadata document could not
	// be fetched or parsed. The login attempt is aborted; there is no
	// retry within an attempt.
	ErrMetadataFetch = errors.New("metadata fetch failed")

	// ErrInvalidAssertion indicates that an incoming SAML response failed
	// signature, condition, audience or issuer validation.
	ErrInvalidAssertion = errors.New("invalid assertion")

	// ErrMissingAttribute indicates that a required identity claim is
	// absent from the assertion or carries no values.
	ErrMissingAttribute = errors.New("missing attribute")
)
