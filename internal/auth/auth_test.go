package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rohits-web03/nimbus/internal/config"
	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewIssuer("s3cret", time.Hour)
	require.NoError(t, err)
	user := &models.User{ID: uuid.New(), Username: "alice"}

	token, exp, err := issuer.Issue(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	id, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
}

func TestIssuer_Rejects(t *testing.T) {
	issuer, err := NewIssuer("s3cret", time.Hour)
	require.NoError(t, err)
	user := &models.User{ID: uuid.New(), Username: "alice"}

	other, err := NewIssuer("another", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.Issue(user)
	require.NoError(t, err)
	_, err = issuer.Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := issuer.Issue(user)
	require.NoError(t, err)
	issuer.now = time.Now
	_, err = issuer.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: user.ID.String()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Parse(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewIssuer("", time.Hour)
	assert.Error(t, err)
}

func TestState_RoundTrip(t *testing.T) {
	state, err := GenerateState(map[string]string{"flow": "register"})
	require.NoError(t, err)

	data, err := DecodeState(state)
	require.NoError(t, err)
	assert.Equal(t, "register", data["flow"])

	again, err := GenerateState(map[string]string{"flow": "register"})
	require.NoError(t, err)
	assert.NotEqual(t, state, again)
}

func TestDecodeState_Invalid(t *testing.T) {
	for _, s := range []string{"", "nodot", "a.b.c", "abc.!!!", "abc.bm90LWpzb24"} {
		_, err := DecodeState(s)
		assert.Error(t, err, s)
	}
}

func TestNewGoogleConfig(t *testing.T) {
	oc := NewGoogleConfig(config.GoogleConfig{ClientID: "id", ClientSecret: "sec", RedirectURL: "http://cb"})
	assert.Equal(t, "id", oc.ClientID)
	assert.Equal(t, "http://cb", oc.RedirectURL)
	assert.Len(t, oc.Scopes, 2)
	assert.Contains(t, oc.AuthCodeURL("st"), "state=st")
}
