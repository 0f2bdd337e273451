package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/tmalik/banking-core/internal/db"
	"github.com/tmalik/banking-core/internal/models"
)

// UserService manages registration, login and suspension.
type UserService struct {
	store     *db.Postgres
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewUserService(store *db.Postgres, jwtSecret string, tokenTTL time.Duration) *UserService {
	return &UserService{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

// Register creates a new user with a hashed password.
func (s *UserService) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	if req.Password != req.ConfirmPassword {
		return nil, models.ErrPasswordMatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PhoneNumber:  req.PhoneNumber,
		PasswordHash: string(hash),
		Role:         models.RoleRegular,
	}
	return s.store.CreateUser(ctx, user)
}

// Login verifies the credentials and issues a signed session token.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return "", models.ErrInvalidCredentials
		}
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", models.ErrInvalidCredentials
	}

	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"exp":  time.Now().Add(s.tokenTTL).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses a session token and returns the user id and role.
func (s *UserService) VerifyToken(tokenString string) (userID string, role models.UserRole, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	roleClaim, _ := claims["role"].(string)
	return sub, models.UserRole(roleClaim), nil
}

// SuspendAccount deactivates a user. The funds movement engine calls
// this when the pin failure threshold is breached.
func (s *UserService) SuspendAccount(ctx context.Context, ownerID, reason string) error {
	if err := s.store.SetUserActive(ctx, ownerID, false); err != nil {
		return fmt.Errorf("failed to suspend user %s: %w", ownerID, err)
	}
	logrus.WithFields(logrus.Fields{
		"owner_id": ownerID,
		"reason":   reason,
	}).Warn("account suspended")
	return nil
}

// GetUser retrieves a user by id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.store.GetUserByID(ctx, id)
}

// ListUsers returns every registered user. Admin only.
func (s *UserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.store.ListUsers(ctx)
}
