package user

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserDataInvalid = errors.New("user data is invalid")
	ErrUsernameTaken   = errors.New("username is already taken")
)

type User struct {
	Id          string
	Username    string
	DisplayName string
	Settings    Settings
}

// Settings carries per-user defaults applied when creating projects.
type Settings struct {
	Timezone string
	// Currency is an ISO-4217 code used as the default for new projects.
	Currency string
}
