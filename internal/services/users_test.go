package services

import (
	"context"
	"testing"

	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newTestUsers(t *testing.T) (*Users, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	u := NewUsers(db, NewCatalog(db), zap.NewNop())
	u.cost = bcrypt.MinCost
	return u, db
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Username:  "alice",
		Email:     "Alice@Example.com",
		FirstName: "Alice",
		LastName:  "Liddell",
		Phone:     "+919876543210",
		Password:  "wonderland",
		Password2: "wonderland",
	}
}

func TestUsers_RegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	users, _ := newTestUsers(t)

	user, err := users.Register(ctx, validRegistration())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "wonderland", user.Password)
	require.NotNil(t, user.Package)
	assert.Equal(t, "Free", user.Package.Name)

	got, err := users.Authenticate(ctx, "alice", "wonderland")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	require.NotNil(t, got.Package)

	_, err = users.Authenticate(ctx, "alice", "wrong password")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = users.Authenticate(ctx, "nobody", "wonderland")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestUsers_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	users, _ := newTestUsers(t)
	_, err := users.Register(ctx, validRegistration())
	require.NoError(t, err)

	cases := map[string]struct {
		mutate func(*RegisterInput)
		msg    string
	}{
		"taken username": {func(in *RegisterInput) { in.Email = "other@example.com" }, "Username is already taken"},
		"taken email":    {func(in *RegisterInput) { in.Username = "alice2" }, "User already exists with this email"},
		"mismatch":       {func(in *RegisterInput) { in.Username = "x"; in.Password2 = "different" }, "Passwords do not match"},
		"missing email":  {func(in *RegisterInput) { in.Email = "" }, "email is required"},
		"bad email":      {func(in *RegisterInput) { in.Email = "nope" }, "Enter a valid email address"},
		"short password": {func(in *RegisterInput) { in.Password, in.Password2 = "short", "short" }, "password must be at least 8 characters"},
		"bad phone":      {func(in *RegisterInput) { in.Phone = "12345" }, "Enter a valid phone number in international format"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := validRegistration()
			tc.mutate(&in)
			_, err := users.Register(ctx, in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Equal(t, tc.msg, apperr.Message(err))
		})
	}
}

func TestUsers_Update(t *testing.T) {
	ctx := context.Background()
	users, _ := newTestUsers(t)
	alice, err := users.Register(ctx, validRegistration())
	require.NoError(t, err)

	bobIn := validRegistration()
	bobIn.Username, bobIn.Email = "bob", "bob@example.com"
	_, err = users.Register(ctx, bobIn)
	require.NoError(t, err)

	first := "Alicia"
	updated, err := users.Update(ctx, alice.ID, UpdateInput{FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", updated.FirstName)
	assert.Equal(t, "Liddell", updated.LastName)
	assert.Equal(t, "alice", updated.Username)

	taken := "bob"
	_, err = users.Update(ctx, alice.ID, UpdateInput{Username: &taken})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	same := "alice"
	_, err = users.Update(ctx, alice.ID, UpdateInput{Username: &same})
	assert.NoError(t, err)
}

func TestUsers_FindOrCreateGoogle(t *testing.T) {
	ctx := context.Background()
	users, _ := newTestUsers(t)

	_, err := users.FindOrCreateGoogle(ctx, "g@example.com", "Grace Hopper", false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	created, err := users.FindOrCreateGoogle(ctx, "G@example.com", "Grace Hopper", true)
	require.NoError(t, err)
	assert.Equal(t, "grace-hopper", created.Username)
	assert.Equal(t, "Grace", created.FirstName)
	assert.Equal(t, "Hopper", created.LastName)
	require.NotNil(t, created.Package)

	_, err = users.FindOrCreateGoogle(ctx, "g@example.com", "Grace Hopper", true)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	found, err := users.FindOrCreateGoogle(ctx, "g@example.com", "", false)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	// a second Grace Hopper gets a suffixed username
	other, err := users.FindOrCreateGoogle(ctx, "grace2@example.com", "Grace Hopper", true)
	require.NoError(t, err)
	assert.NotEqual(t, "grace-hopper", other.Username)
	assert.Contains(t, other.Username, "grace-hopper-")

	// Google accounts cannot log in with a password
	_, err = users.Authenticate(ctx, created.Username, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = users.Authenticate(ctx, created.Username, "anything")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	catalog := NewCatalog(db)

	pkgs, err := catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, pkgs, 3)

	def, err := catalog.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, pkgs[0].ID, def.ID)

	_, err = catalog.Get(ctx, 12345)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
