package identity

import (
	"context"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
)

// DeviceRecord is the minimal view of a device this service needs: its
// name (used as the implicit username for Password<->UserPass symmetry),
// its stored credentials, and the set of devices it is permitted to act
// "as" (gateway authorization).
type DeviceRecord struct {
	App         string
	Name        string
	Credentials []Credential
	GatewayFor  []string
	Aliases     []string
}

// Registry is the subset of C2 the authentication service depends on.
// Declared here, implemented by internal/registry, to avoid a cyclic
// import between the two packages.
type Registry interface {
	LookupDevice(ctx context.Context, app, device string) (*DeviceRecord, error)
}

type Outcome struct {
	App    string
	Device string
	As     string
}

// AuthenticationService implements authenticate_device and
// authorize_gateway as described in §4.1, grounded on
// authentication-service/src/service.rs's lookup-then-validate shape.
type AuthenticationService struct {
	registry Registry
}

func NewAuthenticationService(registry Registry) *AuthenticationService {
	return &AuthenticationService{registry: registry}
}

// AuthenticateDevice looks up the device and checks the provided
// credential against its stored ones. Any failure — unknown app, unknown
// device, or no matching credential — collapses to the same Fail
// outcome so the caller can never distinguish "wrong password" from
// "no such device" (§4.1: never leak which field failed).
func (s *AuthenticationService) AuthenticateDevice(ctx context.Context, app, device string, cred Credential, as string) (*Outcome, error) {
	rec, err := s.registry.LookupDevice(ctx, app, device)
	if err != nil {
		if apierr.KindOf(err) == apierr.KindNotFound {
			return nil, apierr.New(apierr.KindAuthentication, "authentication failed")
		}
		return nil, err
	}

	ok := false
	switch cred.Kind {
	case CredentialPassword, CredentialUserPass:
		ok = Matches(cred, rec.Name, rec.Credentials)
	case CredentialCertificate:
		// A bare identity.Credential carries no trust anchor, so
		// certificate credentials always fail on this path. Chain
		// validation against an anchor is MatchesCertificate, which no
		// caller in this repository invokes.
		ok = false
	}
	if !ok {
		return nil, apierr.New(apierr.KindAuthentication, "authentication failed")
	}

	if as != "" && as != device {
		if !s.isGatewayFor(rec, as) {
			return nil, apierr.New(apierr.KindAuthentication, "authentication failed")
		}
		return &Outcome{App: app, Device: device, As: as}, nil
	}
	return &Outcome{App: app, Device: device}, nil
}

// AuthorizeGateway checks that gatewayDevice is permitted to publish or
// receive commands on behalf of asDevice.
func (s *AuthenticationService) AuthorizeGateway(ctx context.Context, app, gatewayDevice, asDevice string) (*Outcome, error) {
	rec, err := s.registry.LookupDevice(ctx, app, gatewayDevice)
	if err != nil {
		return nil, apierr.New(apierr.KindAuthorization, "not authorized")
	}
	if !s.isGatewayFor(rec, asDevice) {
		return nil, apierr.New(apierr.KindAuthorization, "not authorized")
	}
	return &Outcome{App: app, Device: asDevice}, nil
}

func (s *AuthenticationService) isGatewayFor(rec *DeviceRecord, target string) bool {
	for _, d := range rec.GatewayFor {
		if d == target {
			return true
		}
	}
	return false
}
