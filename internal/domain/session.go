package domain

import "github.com/google/uuid"

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// NormalizeSessionID parses id as a UUID and returns its canonical form.
func NormalizeSessionID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
