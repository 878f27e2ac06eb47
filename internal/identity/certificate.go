package identity

import (
	"crypto/x509"
)

// TrustAnchor is an application-configured CA certificate pool. The
// device aliases a leaf is checked against are passed separately to
// MatchesCertificate.
type TrustAnchor struct {
	Pool *x509.CertPool
}

// MatchesCertificate validates the presented chain against the
// application's trust anchor and checks the leaf certificate's subject
// common name against the device's known aliases, per §4.1's
// Certificate(chain) rule. The leaf is expected to be the first
// certificate in chain; any remaining entries are intermediates.
func MatchesCertificate(chain []*x509.Certificate, anchor TrustAnchor, deviceAliases []string) bool {
	if len(chain) == 0 || anchor.Pool == nil {
		return false
	}
	leaf := chain[0]

	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}

	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         anchor.Pool,
		Intermediates: intermediates,
	}); err != nil {
		return false
	}

	for _, alias := range deviceAliases {
		if leaf.Subject.CommonName == alias {
			return true
		}
	}
	return false
}
