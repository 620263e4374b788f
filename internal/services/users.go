package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/rohits-web03/nimbus/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterInput struct {
	Username  string `json:"username" validate:"required,max=150"`
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
	Phone     string `json:"phone" validate:"omitempty,e164"`
	Password  string `json:"password" validate:"required,min=8"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
}

// UpdateInput is a partial profile update, nil fields are left alone.
type UpdateInput struct {
	Username  *string `json:"username" validate:"omitempty,min=1,max=150"`
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
	Phone     *string `json:"phone" validate:"omitempty,e164"`
}

type Users struct {
	db      *gorm.DB
	catalog *Catalog
	log     *zap.Logger
	cost    int
}

func NewUsers(db *gorm.DB, catalog *Catalog, log *zap.Logger) *Users {
	return &Users{db: db, catalog: catalog, log: log, cost: bcrypt.DefaultCost}
}

func (u *Users) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	if taken, err := u.exists(ctx, "username = ?", in.Username); err != nil {
		return nil, err
	} else if taken {
		return nil, apperr.Validation("Username is already taken")
	}
	if taken, err := u.exists(ctx, "email = ?", in.Email); err != nil {
		return nil, err
	} else if taken {
		return nil, apperr.Validation("User already exists with this email")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), u.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:  in.Username,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
		Password:  string(hashed),
	}
	if err := u.create(ctx, user); err != nil {
		return nil, err
	}
	u.log.Info("user registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

// create assigns the default package and inserts the user.
func (u *Users) create(ctx context.Context, user *models.User) error {
	pkg, err := u.catalog.Default(ctx)
	if err != nil {
		return err
	}
	if pkg != nil {
		user.PackageID = &pkg.ID
	}
	if err := u.db.WithContext(ctx).Omit("Package").Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	user.Package = pkg
	return nil
}

func (u *Users) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var count int64
	if err := u.db.WithContext(ctx).Model(&models.User{}).Where(query, args...).Count(&count).Error; err != nil {
		return false, fmt.Errorf("lookup user: %w", err)
	}
	return count > 0, nil
}

func (u *Users) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, apperr.Validation("Invalid input")
	}
	var user models.User
	err := u.db.WithContext(ctx).Preload("Package").Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Unauthorized("Invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, apperr.Unauthorized("Invalid credentials")
	}
	return &user, nil
}

// Get loads the user with its package.
func (u *Users) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := u.db.WithContext(ctx).Preload("Package").First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (u *Users) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.User, error) {
	if in.Username != nil {
		trimmed := strings.TrimSpace(*in.Username)
		in.Username = &trimmed
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	user, err := u.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.Username != nil && *in.Username != user.Username {
		taken, err := u.exists(ctx, "username = ? AND id <> ?", *in.Username, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.Validation("Username is already taken")
		}
		updates["username"] = *in.Username
	}
	if in.FirstName != nil {
		updates["first_name"] = *in.FirstName
	}
	if in.LastName != nil {
		updates["last_name"] = *in.LastName
	}
	if in.Phone != nil {
		updates["phone"] = *in.Phone
	}
	if len(updates) == 0 {
		return user, nil
	}
	if err := u.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u.Get(ctx, id)
}

// FindOrCreateGoogle resolves a Google identity. The register flow fails
// with Conflict when the email is known, the login flow with NotFound when
// it is not.
func (u *Users) FindOrCreateGoogle(ctx context.Context, email, name string, register bool) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperr.Validation("Google account has no email")
	}

	var user models.User
	err := u.db.WithContext(ctx).Preload("Package").Where("email = ?", email).First(&user).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !register {
		if !found {
			return nil, apperr.NotFound("user_not_found")
		}
		return &user, nil
	}
	if found {
		return nil, apperr.Conflict("user_already_exists")
	}

	username, err := u.freeUsername(ctx, name, email)
	if err != nil {
		return nil, err
	}
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	user = models.User{
		Username:  username,
		Email:     email,
		FirstName: first,
		LastName:  strings.TrimSpace(last),
	}
	if err := u.create(ctx, &user); err != nil {
		return nil, err
	}
	u.log.Info("user registered with google", zap.String("user_id", user.ID.String()))
	return &user, nil
}

func (u *Users) freeUsername(ctx context.Context, name, email string) (string, error) {
	base := utils.Slugify(name)
	if base == "" {
		local, _, _ := strings.Cut(email, "@")
		base = utils.Slugify(local)
	}
	if base == "" {
		base = "user"
	}
	candidate := base
	for range 5 {
		taken, err := u.exists(ctx, "username = ?", candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		suffix, err := utils.GenerateSecureToken(4)
		if err != nil {
			return "", err
		}
		candidate = base + "-" + strings.ToLower(suffix)
	}
	return "", apperr.Conflict("could not allocate a username")
}
