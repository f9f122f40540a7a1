package handler

import (
	"net/http"

	"github.com/authbridge/saml"
)

// RedirectBindingHandlerFunc initiates SSO with the HTTP-Redirect
// binding: 302 to the IDP with the AuthnRequest in the query string.
func RedirectBindingHandlerFunc(sp *saml.ServiceProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirectURL, _, err := sp.AuthnRequestRedirect(r.Context(), r.URL.Query().Get("RelayState"))
		if err != nil {
			http.Error(w, "failed to create SAML authentication request", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, redirectURL.String(), http.StatusFound)
	}
}
