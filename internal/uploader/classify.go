package uploader

import "strings"

// FailureKind classifies an upload failure for the retry policy and for
// account health bookkeeping.
type FailureKind int

const (
	// FailureTransient covers network errors, timeouts and temporary
	// rate limiting by the target; eligible for retry.
	FailureTransient FailureKind = iota

	// FailureAuth means the account's credentials or session were
	// rejected; not retried, counts toward the consecutive failure limit.
	FailureAuth

	// FailureBanned means the target reports the account as banned or
	// suspended; not retried, the account is downgraded immediately.
	FailureBanned

	// FailureCaptcha means the target demanded a captcha the automation
	// could not pass; not retried until the account is serviced.
	FailureCaptcha
)

// Transient reports whether the failure is worth retrying
func (k FailureKind) Transient() bool {
	return k == FailureTransient
}

func (k FailureKind) String() string {
	switch k {
	case FailureAuth:
		return "auth"
	case FailureBanned:
		return "banned"
	case FailureCaptcha:
		return "captcha"
	default:
		return "transient"
	}
}

// Classify maps a collaborator error message to a failure kind. Unknown
// failures default to transient so a flaky automation run gets retried
// rather than burning an account.
func Classify(errMsg string) FailureKind {
	msg := strings.ToLower(errMsg)

	switch {
	case contains(msg, "banned", "suspended", "account disabled", "permanently removed"):
		return FailureBanned
	case contains(msg, "captcha", "challenge required", "verification required"):
		return FailureCaptcha
	case contains(msg, "invalid credentials", "login failed", "authentication failed",
		"session expired", "cookies expired", "not logged in", "unauthorized"):
		return FailureAuth
	default:
		return FailureTransient
	}
}

func contains(msg string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}
