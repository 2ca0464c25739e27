package uploader

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		expected FailureKind
	}{
		{"network error", "connection reset by peer", FailureTransient},
		{"timeout", "upload timed out after 120s", FailureTransient},
		{"rate limit", "too many requests, slow down", FailureTransient},
		{"empty", "", FailureTransient},
		{"banned", "account Banned by platform", FailureBanned},
		{"suspended", "this account has been suspended", FailureBanned},
		{"captcha", "CAPTCHA challenge presented", FailureCaptcha},
		{"verification", "verification required to continue", FailureCaptcha},
		{"bad login", "Login failed: wrong password", FailureAuth},
		{"expired session", "session expired, please re-authenticate", FailureAuth},
		{"unauthorized", "401 unauthorized", FailureAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.errMsg); got != tt.expected {
				t.Errorf("Classify(%q) = %s, want %s", tt.errMsg, got, tt.expected)
			}
		})
	}
}

func TestTransient(t *testing.T) {
	if !FailureTransient.Transient() {
		t.Error("transient kind must be retryable")
	}
	for _, k := range []FailureKind{FailureAuth, FailureBanned, FailureCaptcha} {
		if k.Transient() {
			t.Errorf("%s must not be retryable", k)
		}
	}
}
