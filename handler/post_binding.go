package handler

import (
	"net/http"

	"github.com/authbridge/saml"
)

// PostBindingHandlerFunc initiates SSO with the HTTP-POST binding: it
// renders the auto-submitting form that carries the AuthnRequest to the
// IDP.
func PostBindingHandlerFunc(sp *saml.ServiceProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, _, err := sp.AuthnRequestPost(r.Context(), r.URL.Query().Get("RelayState"))
		if err != nil {
			http.Error(w, "failed to create SAML authentication request", http.StatusInternalServerError)
			return
		}

		saml.WritePostBindingRequestHeader(w)
		if _, err := w.Write(form); err != nil {
			http.Error(w, "failed to serve post binding request", http.StatusInternalServerError)
			return
		}
	}
}
