package identity

import (
	"github.com/authbridge/saml"
)

// ExtraDataSubjectID is the key under which the SAML subject ID travels
// in Outcome.ExtraData, for the post-account-creation callback.
const ExtraDataSubjectID = "saml_subject_id"

// Outcome is the final authentication result handed to the host per
// login.
type Outcome struct {
	Username            string
	DisplayName         string
	Email               string
	EmailValid          bool
	SkipEmailValidation bool

	// BoundUserID is the resolved local user, zero when the subject is
	// unresolved and the host must create an account.
	BoundUserID int64

	ExtraData map[string]string
}

// Resolved reports whether the login mapped onto an existing local user.
func (o *Outcome) Resolved() bool {
	return o.BoundUserID != 0
}

// AssembleOutcome composes the authentication outcome from the mapped
// identity record and the binding resolution. Pure composition, no I/O.
func AssembleOutcome(rec *saml.IdentityRecord, res *Resolution) *Outcome {
	out := &Outcome{
		Username:            rec.Username,
		DisplayName:         rec.DisplayName,
		Email:               rec.Email,
		EmailValid:          rec.EmailValid,
		SkipEmailValidation: rec.SkipEmailValidation,
		ExtraData: map[string]string{
			ExtraDataSubjectID: res.SubjectID,
		},
	}

	if res.State != StateUnresolved {
		out.BoundUserID = res.UserID
	}

	return out
}
