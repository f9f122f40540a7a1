// Package handler provides net/http handlers for the SP's two routes:
// login initiation toward the IDP and the assertion consumer callback.
// Hosts mount them on whatever router they use.
package handler

import (
	"net/http"

	"github.com/authbridge/saml"
)

// RequestHandlerFunc initiates SSO using the configured request binding.
func RequestHandlerFunc(sp *saml.ServiceProvider) http.HandlerFunc {
	if sp.Config().RequestBinding == saml.RequestBindingPOST {
		return PostBindingHandlerFunc(sp)
	}
	return RedirectBindingHandlerFunc(sp)
}
