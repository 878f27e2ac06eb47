package apierr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_NilCausePassesThrough(t *testing.T) {
	var err error
	wrapped := Wrap(KindTemporary, "pool exhausted", err)
	assert.Nil(t, wrapped)
}

func TestKindOf_DefaultsToPermanent(t *testing.T) {
	assert.Equal(t, KindPermanent, KindOf(errors.New("boom")))
}

func TestKindOf_UnwrapsThroughChain(t *testing.T) {
	base := New(KindNotInitialized, "unknown session")
	chained := errors.New("handler failed")
	chained = errors.Join(chained, base)
	assert.Equal(t, KindNotInitialized, KindOf(chained))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindAuthentication:       http.StatusUnauthorized,
		KindAuthorization:        http.StatusNotFound,
		KindNotFound:             http.StatusNotFound,
		KindInvalidRequest:       http.StatusBadRequest,
		KindConflict:             http.StatusConflict,
		KindOptimisticLockFailed: http.StatusConflict,
		KindReferenceNotFound:    http.StatusUnprocessableEntity,
		KindNotInitialized:       http.StatusPreconditionFailed,
		KindTemporary:            http.StatusServiceUnavailable,
		KindPermanent:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), "kind=%s", kind)
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(KindTemporary))
	assert.False(t, Retryable(KindPermanent))
	assert.False(t, Retryable(KindConflict))
}
