package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"dispatchflow/fault"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = fault.Unauthenticated("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = fault.InvalidInput("auth: password must be at least 8 characters")
	// ErrInactiveUser signals the account exists but has been deactivated.
	ErrInactiveUser = fault.Forbidden("auth: user is inactive")
)

// Service handles authentication business logic.
type Service struct {
	repo      Repository
	jwtSecret []byte
}

// LoginResult bundles the token and domain user returned after a successful login.
type LoginResult struct {
	Token string
	User  User
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
	}
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	if req.Email == "" || req.FullName == "" {
		return nil, fault.InvalidInput("auth: email and full_name are required")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	role := Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = RoleSupplier
	}
	if !isValidRole(role) {
		return nil, fault.Newf(fault.KindInvalidInput, "auth: invalid role %q", role)
	}

	var supplierCompanyID *string
	if req.SupplierCompanyID != "" {
		supplierCompanyID = &req.SupplierCompanyID
	}
	// Supplier affiliation is mandatory for SUPPLIER callers and meaningless
	// for dispatcher-side roles.
	if role == RoleSupplier && supplierCompanyID == nil {
		return nil, fault.InvalidInput("auth: supplier users require a supplier_company_id")
	}
	if role != RoleSupplier && supplierCompanyID != nil {
		return nil, fault.InvalidInput("auth: only supplier users carry a supplier_company_id")
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:             req.Email,
		FullName:          req.FullName,
		PasswordHash:      string(passwordHash),
		Role:              role,
		SupplierCompanyID: supplierCompanyID,
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Login authenticates a user and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		return LoginResult{}, ErrInactiveUser
	}

	token, err := s.generateToken(user.ID, user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{
		Token: token,
		User:  user,
	}, nil
}

// Resolve maps a bearer token to an active user record. It is the identity
// resolver consumed by every authenticated command.
func (s *Service) Resolve(ctx context.Context, token string) (User, error) {
	userID, _, err := s.VerifyToken(token)
	if err != nil {
		return User{}, err
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, fault.Unauthenticated("auth: token user no longer exists")
		}
		return User{}, err
	}
	if !user.IsActive {
		return User{}, ErrInactiveUser
	}
	return user, nil
}

// RequireRole checks the caller against the ordered role hierarchy.
func RequireRole(user User, required Role) error {
	if !user.Role.Satisfies(required) {
		return fault.Newf(fault.KindForbidden, "auth: role %s required", required)
	}
	return nil
}

// GetUserByID retrieves user information by ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyToken validates a JWT token and returns the user ID and role.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return "", "", fault.Newf(fault.KindUnauthenticated, "auth: parse token: %v", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(string)
		if !ok {
			return "", "", fault.Unauthenticated("auth: invalid user_id in token")
		}
		roleStr, ok := claims["role"].(string)
		if !ok {
			return "", "", fault.Unauthenticated("auth: invalid role in token")
		}
		role := Role(roleStr)
		if !isValidRole(role) {
			return "", "", fault.Newf(fault.KindUnauthenticated, "auth: invalid role %q in token", roleStr)
		}
		return userID, role, nil
	}

	return "", "", fault.Unauthenticated("auth: invalid token")
}

// generateToken creates a JWT token for the user.
func (s *Service) generateToken(userID string, role Role) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleSupplier, RoleKovi, RoleAdmin:
		return true
	default:
		return false
	}
}
