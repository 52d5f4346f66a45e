package user

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{4,20}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern    = regexp.MustCompile(`^1[3-9]\d{9}$`)
)

// MinPasswordLength is the shortest password accepted.
const MinPasswordLength = 8

func ValidUsername(s string) bool { return usernamePattern.MatchString(s) }

func ValidEmail(s string) bool { return emailPattern.MatchString(s) }

// ValidPhone accepts mainland China mobile numbers.
func ValidPhone(s string) bool { return phonePattern.MatchString(s) }

// StrongPassword requires MinPasswordLength characters including an upper
// case letter, a lower case letter and a digit.
func StrongPassword(s string) bool {
	if utf8.RuneCountInString(s) < MinPasswordLength {
		return false
	}
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}
