package util

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"session-auth/internal/model"
)

const (
	nicknameMinRunes = 2
	nicknameMaxRunes = 20
	passwordMinRunes = 8
	passwordMaxRunes = 64
)

// NormalizeNickname strips control and invisible characters and surrounding
// space, then checks length and alphabet: letters (including Hangul) and digits.
func NormalizeNickname(raw string) (string, error) {
	builder := strings.Builder{}
	builder.Grow(len(raw))
	for _, char := range strings.TrimSpace(raw) {
		if unicode.IsControl(char) || isInvisibleUnicode(char) {
			continue
		}
		builder.WriteRune(char)
	}
	nickname := builder.String()

	length := utf8.RuneCountInString(nickname)
	if length < nicknameMinRunes || length > nicknameMaxRunes {
		return "", model.ErrInvalidInput.WithDetails("nickname must be 2-20 characters")
	}
	for _, char := range nickname {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) {
			return "", model.ErrInvalidInput.WithDetails("nickname may contain only letters and digits")
		}
	}

	return nickname, nil
}

// ValidatePassword requires 8-64 characters with at least one letter, digit and symbol.
func ValidatePassword(password string) error {
	length := utf8.RuneCountInString(password)
	if length < passwordMinRunes || length > passwordMaxRunes {
		return model.ErrInvalidInput.WithDetails("password must be 8-64 characters")
	}

	var letter, digit, symbol bool
	for _, char := range password {
		switch {
		case unicode.IsLetter(char):
			letter = true
		case unicode.IsDigit(char):
			digit = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			symbol = true
		case unicode.IsSpace(char):
			return model.ErrInvalidInput.WithDetails("password may not contain spaces")
		}
	}
	if !letter || !digit || !symbol {
		return model.ErrInvalidInput.WithDetails("password needs a letter, a digit and a symbol")
	}

	return nil
}

// NormalizeEmail lower-cases and validates a bare address ("a@x.com", not "A <a@x.com>").
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.ErrInvalidInput.WithDetails("email is not a valid address")
	}
	return email, nil
}

// isInvisibleUnicode reports zero-width and format characters that render
// as nothing and would let two nicknames look identical.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u2060', // Word Joiner
		'\uFEFF': // Zero-Width No-Break Space / BOM
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
