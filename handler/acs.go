package handler

import (
	"encoding/json"
	"net/http"

	"github.com/authbridge/saml/identity"
)

// ACSHandlerFunc handles GET|POST /auth/saml/callback: it consumes the
// IDP's SAML response and writes the authentication outcome as JSON.
// Rejected logins answer 401; the host decides how to surface them.
func ACSHandlerFunc(auth *identity.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed callback request", http.StatusBadRequest)
			return
		}

		samlResp := r.FormValue("SAMLResponse")
		if samlResp == "" {
			http.Error(w, "missing SAMLResponse", http.StatusBadRequest)
			return
		}

		outcome, err := auth.AfterAuthenticate(r.Context(), samlResp)
		if err != nil {
			http.Error(w, "failed to handle SAML response", http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(outcome)
	}
}
