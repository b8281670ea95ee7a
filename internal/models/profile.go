package models

// Organization is a tenant the account belongs to on the backend.
type Organization struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Profile is the account snapshot returned by login. The vault caches it so
// offline sessions can restore the same identity.
type Profile struct {
	UserID       int64         `json:"user_id"`
	Email        string        `json:"email"`
	FullName     string        `json:"full_name,omitempty"`
	Organization *Organization `json:"organization,omitempty"`
}
