package auth

import "time"

type Role string

const (
	RoleSupplier Role = "SUPPLIER"
	RoleKovi     Role = "KOVI"
	RoleAdmin    Role = "ADMIN"
)

// rank orders roles so higher roles satisfy lower role requirements. The
// ordering is explicit rather than a list-position lookup.
func (r Role) rank() int {
	switch r {
	case RoleSupplier:
		return 1
	case RoleKovi:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// Satisfies reports whether r meets the required role in the hierarchy
// SUPPLIER < KOVI < ADMIN.
func (r Role) Satisfies(required Role) bool {
	return r.rank() >= required.rank() && r.rank() > 0
}

// User is the domain representation of an authenticated user.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID                string
	Email             string
	FullName          string
	PasswordHash      string
	Role              Role
	SupplierCompanyID *string
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	FullName          string `json:"full_name"`
	Role              Role   `json:"role"`
	SupplierCompanyID string `json:"supplier_company_id"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
