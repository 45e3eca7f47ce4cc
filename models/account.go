package models

// AccountUpdate is a change to an account held by the OAuth2 credential service.
// Empty fields and a nil AccountVerified are left untouched.
type AccountUpdate struct {
	Username        string
	NewUsername     string
	Password        string
	AccountVerified *bool
}
