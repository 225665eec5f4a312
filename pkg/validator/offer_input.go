package validator

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmptyText indicates a required free-text answer was left blank
	ErrEmptyText = errors.New("this field cannot be empty")

	// ErrTextTooLong indicates a free-text answer exceeds maxTextLength characters
	ErrTextTooLong = fmt.Errorf("this field cannot be longer than %d characters", maxTextLength)

	// ErrInvalidURL indicates an offer link that is not an absolute http(s) URL
	ErrInvalidURL = errors.New("link must start with http:// or https://")

	// ErrInvalidAge indicates an age that is not a whole number in range
	ErrInvalidAge = fmt.Errorf("age must be a whole number between %d and %d", MinAge, MaxAge)

	// ErrInvalidPostCode indicates a post code with characters other than letters, digits, spaces or dashes
	ErrInvalidPostCode = errors.New("post code can only contain letters, digits, spaces and dashes")
)

// Age bounds of a monthly pass holder
const (
	MinAge = 1
	MaxAge = 120
)

const maxTextLength = 1000

var postCodeRegex = regexp.MustCompile(`^[\p{L}\d][\p{L}\d \-]{1,11}$`)

// NormalizeText trims a free-text answer and bounds its length
func NormalizeText(input string) (string, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return "", ErrEmptyText
	}
	if !utf8.ValidString(text) || utf8.RuneCountInString(text) > maxTextLength {
		return "", ErrTextTooLong
	}
	return text, nil
}

// NormalizeName collapses whitespace in a person or offer name
func NormalizeName(input string) (string, error) {
	name := strings.Join(strings.Fields(input), " ")
	if name == "" {
		return "", ErrEmptyText
	}
	if !utf8.ValidString(name) || utf8.RuneCountInString(name) > maxFieldLength {
		return "", fmt.Errorf("name cannot be longer than %d characters", maxFieldLength)
	}
	return name, nil
}

// ParseOfferURL accepts an absolute http or https link
func ParseOfferURL(input string) (string, error) {
	raw := strings.TrimSpace(input)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}

// ParseAge accepts a whole number in [MinAge, MaxAge]
func ParseAge(input string) (int, error) {
	age, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || age < MinAge || age > MaxAge {
		return 0, ErrInvalidAge
	}
	return age, nil
}

// NormalizePostCode upper-cases a post code such as "sw1a 1aa"
func NormalizePostCode(input string) (string, error) {
	code := strings.ToUpper(strings.Join(strings.Fields(input), " "))
	if !postCodeRegex.MatchString(code) {
		return "", ErrInvalidPostCode
	}
	return code, nil
}
