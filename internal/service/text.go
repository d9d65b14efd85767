package service

import (
	"net/mail"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sakif/chore-tracker/internal/apperror"
)

// cleanText trims and NFC-normalizes free text, so "é" typed as one code
// point or as e + combining accent is stored (and compared) the same way.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.ValidationFailed("email", "please enter a valid email address")
	}
	return nil
}
