package model

import "errors"

// ErrUserNotFound is returned when a username does not resolve to an account.
var ErrUserNotFound = errors.New("user not found")

// User is the subset of the account record the batch subsystem reads.
type User struct {
	ID       int64  `json:"id"       db:"id"`
	Username string `json:"username" db:"username"`
	Email    string `json:"email"    db:"email"`
}
