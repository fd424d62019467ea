package domain

import (
	"errors"

	"playground-flow/internal/object"
)

// User is the acting user carried by host application events.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	Firstname    string `json:"firstname"`
	Lastname     string `json:"lastname"`
	Optin        int    `json:"optin"`
	OptinPartner int    `json:"optinPartner"`
}

// Kind exposes User attributes to story mappings under the "user" role.
var Kind = object.NewKind[User]("user", map[string]func(*User) any{
	"id":           func(u *User) any { return u.ID },
	"email":        func(u *User) any { return u.Email },
	"name":         func(u *User) any { return u.Name },
	"username":     func(u *User) any { return u.Username },
	"firstname":    func(u *User) any { return u.Firstname },
	"lastname":     func(u *User) any { return u.Lastname },
	"optin":        func(u *User) any { return u.Optin },
	"optinPartner": func(u *User) any { return u.OptinPartner },
})

// Flag returns the opt-in flag named field ("optin" or "optinPartner"); other names return 0.
func (u *User) Flag(field string) int {
	switch field {
	case "optin":
		return u.Optin
	case "optinPartner":
		return u.OptinPartner
	}
	return 0
}

// ErrNoSubject is returned by Validate when there is no user to credit a story to.
var ErrNoSubject = errors.New("user id is required")

// Validate validates the user as a story subject. A nil user is invalid.
func (u *User) Validate() error {
	if u == nil || u.ID == "" {
		return ErrNoSubject
	}
	return nil
}
