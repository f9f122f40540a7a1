package handler

import (
	"encoding/xml"
	"net/http"

	"github.com/authbridge/saml"
)

// MetadataHandlerFunc serves the SP metadata XML document.
func MetadataHandlerFunc(sp *saml.ServiceProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/samlmetadata+xml")
		xml.NewEncoder(w).Encode(sp.CreateMetadata())
	}
}
