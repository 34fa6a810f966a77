package api

import (
	"net/mail"
	"unicode"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"socialhub/internal/apperr"
	"socialhub/internal/auth"
	"socialhub/internal/security"
)

// checker collects the issues of one request part.
type checker struct {
	key    string
	issues []apperr.Issue
}

func body() *checker   { return &checker{key: "body"} }
func params() *checker { return &checker{key: "params"} }

func (c *checker) add(path, message string) {
	c.issues = append(c.issues, apperr.Issue{Message: message, Path: path})
}

func (c *checker) required(path, v string) bool {
	if v == "" {
		c.add(path, path+" is required")
		return false
	}
	return true
}

func (c *checker) email(path, v string) {
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		c.add(path, "valid email must be like example@domain.com")
	}
}

func (c *checker) username(path, v string) {
	if !c.required(path, v) {
		return
	}
	switch n := utf8.RuneCountInString(v); {
	case n < 2:
		c.add(path, "min username length is 2 char")
	case n > 20:
		c.add(path, "max username length is 20 char")
	}
}

// password requires 8+ characters with a digit, a lowercase and an uppercase
// letter, and at most security.MaxSecretBytes bytes.
func (c *checker) password(path, v string) {
	if len(v) > security.MaxSecretBytes {
		c.add(path, "password must not exceed 72 bytes")
		return
	}
	var digit, lower, upper bool
	for _, r := range v {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		}
	}
	if utf8.RuneCountInString(v) < 8 || !digit || !lower || !upper {
		c.add(path, "password must have at least 8 characters including a digit, a lowercase and an uppercase letter")
	}
}

func (c *checker) confirm(path, password, confirmation string) {
	if password != confirmation {
		c.add(path, "password mismatch with confirmPassword")
	}
}

func (c *checker) otp(path, v string) {
	if len(v) != 6 {
		c.add(path, "otp must be 6 digits")
		return
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			c.add(path, "otp must be 6 digits")
			return
		}
	}
}

func (c *checker) flag(path string, v *auth.LogoutFlag) {
	switch *v {
	case "":
		*v = auth.LogoutOnly
	case auth.LogoutOnly, auth.LogoutAll:
	default:
		c.add(path, `flag must be one of "only", "all"`)
	}
}

func (c *checker) objectID(path, v string) primitive.ObjectID {
	id, err := primitive.ObjectIDFromHex(v)
	if err != nil {
		c.add(path, "invalid objectId format")
	}
	return id
}

// check merges the issues of parts into one validation failure.
func check(parts ...*checker) error {
	var fields []apperr.FieldError
	for _, p := range parts {
		if len(p.issues) > 0 {
			fields = append(fields, apperr.FieldError{Key: p.key, Issues: p.issues})
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return apperr.Validation(fields)
}
