// Package identity implements C1: device credential matching, gateway
// ("as") authorization, user/principal authentication and access tokens.
package identity

// Credential is one credential a device may present, or one stored
// against a device record. Kind selects which fields are meaningful:
// Password alone, Username together with Password, or Certificate.
type Credential struct {
	Kind CredentialKind `json:"kind"`

	Password string `json:"password,omitempty"`

	Username string `json:"username,omitempty"`

	// Certificate is the PEM-encoded chain presented by the device, or
	// the trust anchor configured on the application, depending on
	// which side of the match this value represents.
	Certificate []byte `json:"certificate,omitempty"`
	Subject     string `json:"subject,omitempty"`
}

type CredentialKind string

const (
	CredentialPassword    CredentialKind = "password"
	CredentialUserPass    CredentialKind = "user_pass"
	CredentialCertificate CredentialKind = "certificate"
)

func Password(p string) Credential {
	return Credential{Kind: CredentialPassword, Password: p}
}

func UserPass(u, p string) Credential {
	return Credential{Kind: CredentialUserPass, Username: u, Password: p}
}

// Matches reproduces the exact credential comparison rules of §4.1: a
// Password credential also matches a stored UserPass whose username
// equals the device name, and vice versa, so that a device which only
// knows its own name can authenticate with either shape.
func Matches(provided Credential, deviceName string, stored []Credential) bool {
	switch provided.Kind {
	case CredentialPassword:
		for _, c := range stored {
			switch {
			case c.Kind == CredentialPassword && c.Password == provided.Password:
				return true
			case c.Kind == CredentialUserPass && c.Username == deviceName && c.Password == provided.Password:
				return true
			}
		}
		return false
	case CredentialUserPass:
		for _, c := range stored {
			switch {
			case c.Kind == CredentialPassword && provided.Username == deviceName && c.Password == provided.Password:
				return true
			case c.Kind == CredentialUserPass && c.Username == provided.Username && c.Password == provided.Password:
				return true
			}
		}
		return false
	default:
		return false
	}
}
