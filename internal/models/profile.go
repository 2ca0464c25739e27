package models

import "time"

// Profile is a stored browser/device fingerprint an account posts with
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserAgent string    `json:"user_agent"`
	Viewport  string    `json:"viewport,omitempty"` // e.g. 1280x720
	Timezone  string    `json:"timezone,omitempty"`
	Locale    string    `json:"locale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
