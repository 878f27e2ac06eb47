package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches_PasswordAuthPass(t *testing.T) {
	stored := []Credential{Password("foo")}

	assert.True(t, Matches(Password("foo"), "device1", stored))
	assert.False(t, Matches(Password("foo1"), "device1", stored))
}

func TestMatches_UserPassViaDeviceID(t *testing.T) {
	stored := []Credential{Password("foo")}

	assert.True(t, Matches(UserPass("device1", "foo"), "device1", stored))
	assert.False(t, Matches(UserPass("device2", "foo"), "device1", stored))
}

func TestMatches_ExhaustiveTruthTable(t *testing.T) {
	tests := []struct {
		name       string
		provided   Credential
		deviceName string
		stored     []Credential
		want       bool
	}{
		{"password == stored password", Password("p"), "dev", []Credential{Password("p")}, true},
		{"password != stored password", Password("wrong"), "dev", []Credential{Password("p")}, false},
		{"password matches stored userpass with username==device", Password("p"), "dev", []Credential{UserPass("dev", "p")}, true},
		{"password does not match stored userpass with different username", Password("p"), "dev", []Credential{UserPass("other", "p")}, false},
		{"userpass == stored userpass", UserPass("u", "p"), "dev", []Credential{UserPass("u", "p")}, true},
		{"userpass wrong password", UserPass("u", "p"), "dev", []Credential{UserPass("u", "wrong")}, false},
		{"userpass matches stored password when username==device", UserPass("dev", "p"), "dev", []Credential{Password("p")}, true},
		{"userpass does not match stored password when username!=device", UserPass("other", "p"), "dev", []Credential{Password("p")}, false},
		{"no stored credentials", Password("p"), "dev", nil, false},
		{"certificate credential never matches via Matches", Credential{Kind: CredentialCertificate}, "dev", []Credential{Password("p")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.provided, tt.deviceName, tt.stored))
		})
	}
}
