package provision

import (
	"errors"
	"math/rand"
	"strings"
)

// ErrMalformedEmail indicates the address cannot be split into first and
// last name parts.
var ErrMalformedEmail = errors.New("malformed email: want first.last@domain")

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
const passwordLength = 16

// Subject is the immutable identity snapshot derived once per run. The
// password is a display-once secret: it is returned to the caller and never
// written to any store.
type Subject struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password,omitempty"`
}

// DeriveSubject builds the subject from an address of the form
// first.last@domain: the login name is the lowercased surname followed by
// the first initial, and the password is freshly generated.
func DeriveSubject(email string) (Subject, error) {
	dot := strings.Index(email, ".")
	at := strings.Index(email, "@")
	if dot <= 0 || at <= dot+1 {
		return Subject{}, ErrMalformedEmail
	}
	first := email[:dot]
	last := email[dot+1 : at]
	return Subject{
		FirstName: first,
		LastName:  last,
		Username:  strings.ToLower(last + email[:1]),
		Email:     email,
		Password:  generatePassword(),
	}, nil
}

// generatePassword draws 16 characters from [a-z0-9]. The password only has
// to survive until the first login, so math/rand is sufficient.
func generatePassword() string {
	b := make([]byte, passwordLength)
	for i := range b {
		b[i] = passwordAlphabet[rand.Intn(len(passwordAlphabet))]
	}
	return string(b)
}
