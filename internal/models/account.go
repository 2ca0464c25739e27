package models

import "time"

// AccountStatus represents the health state of a posting identity
type AccountStatus string

const (
	AccountActive       AccountStatus = "active"
	AccountBanned       AccountStatus = "banned"
	AccountCooldown     AccountStatus = "cooldown"
	AccountNeedsCaptcha AccountStatus = "needs_captcha"
	AccountInactive     AccountStatus = "inactive"
)

// AuthFailureLimit is the number of consecutive auth failures after which
// an account is flipped to inactive.
const AuthFailureLimit = 3

// Account is a reusable posting identity. Only active accounts are
// eligible for new job assignment.
type Account struct {
	ID       string        `json:"id"`
	Email    string        `json:"email"`
	Password string        `json:"-"`
	Cookies  string        `json:"-"` // session cookies, JSON
	Status   AccountStatus `json:"status"`

	ProxyID   string `json:"proxy_id,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`

	ConsecutiveFailures int `json:"consecutive_failures"`

	LastUsed  *time.Time `json:"last_used,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AccountListFilter for filtering accounts
type AccountListFilter struct {
	Status    AccountStatus
	ProxyID   string
	ProfileID string
	Limit     int
	Offset    int
}
