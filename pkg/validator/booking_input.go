package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrEmptyCity indicates a departure or destination was left blank
	ErrEmptyCity = errors.New("city cannot be empty")

	// ErrInvalidCity indicates the city contains characters other than letters, spaces, dots, dashes or apostrophes
	ErrInvalidCity = errors.New("city can only contain letters, spaces, dots, dashes and apostrophes")

	// ErrEmptyDate indicates the travel date was left blank
	ErrEmptyDate = errors.New("travel date cannot be empty")

	// ErrDateTooLong indicates the travel date exceeds the stored field length
	ErrDateTooLong = fmt.Errorf("travel date cannot be longer than %d characters", maxFieldLength)

	// ErrInvalidQuantity indicates the quantity is not a whole number
	ErrInvalidQuantity = errors.New("quantity must be a whole number")

	// ErrQuantityOutOfRange indicates the quantity is outside the bookable range
	ErrQuantityOutOfRange = fmt.Errorf("quantity must be between %d and %d", MinQuantity, MaxQuantity)

	// ErrInvalidCost indicates a route cost that is not a non-negative decimal
	ErrInvalidCost = errors.New("cost must be a non-negative number")

	// ErrCostPrecision indicates a route cost with fractions of a cent
	ErrCostPrecision = errors.New("cost can have at most 2 decimal places")
)

// Quantity bounds for one booking. The bookings table carries the same CHECK.
const (
	MinQuantity = 1
	MaxQuantity = 10
)

const maxFieldLength = 64

var cityRegex = regexp.MustCompile(`^[\p{L}][\p{L} .'\-]*$`)

var titleCaser = cases.Title(language.Und)

// NormalizeCity trims, collapses inner whitespace and title-cases a city name,
// so "  new   york" and "NEW YORK" both become "New York".
func NormalizeCity(city string) (string, error) {
	city = strings.Join(strings.Fields(city), " ")
	if city == "" {
		return "", ErrEmptyCity
	}
	if utf8.RuneCountInString(city) > maxFieldLength || !cityRegex.MatchString(city) {
		return "", ErrInvalidCity
	}
	return titleCaser.String(city), nil
}

// NormalizeTravelDate accepts the date as free text.
// Blank input and input longer than maxFieldLength characters are rejected.
func NormalizeTravelDate(date string) (string, error) {
	date = strings.Join(strings.Fields(date), " ")
	if date == "" {
		return "", ErrEmptyDate
	}
	if !utf8.ValidString(date) || utf8.RuneCountInString(date) > maxFieldLength {
		return "", ErrDateTooLong
	}
	return date, nil
}

// ParseQuantity accepts an integer in [MinQuantity, MaxQuantity]
func ParseQuantity(input string) (int, error) {
	q, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, ErrInvalidQuantity
	}
	if q < MinQuantity || q > MaxQuantity {
		return 0, ErrQuantityOutOfRange
	}
	return q, nil
}

// ParseCost parses a route cost such as "20" or "19.99".
// A comma is accepted as the decimal separator.
func ParseCost(input string) (decimal.Decimal, error) {
	cost, err := decimal.NewFromString(strings.TrimSpace(strings.ReplaceAll(input, ",", ".")))
	if err != nil || cost.IsNegative() {
		return decimal.Zero, ErrInvalidCost
	}
	if !cost.Equal(cost.Truncate(2)) {
		return decimal.Zero, ErrCostPrecision
	}
	return cost, nil
}

// ErrRouteArgs indicates /addroute arguments not in "departure;destination;cost" form
var ErrRouteArgs = errors.New("expected departure;destination;cost")

// ParseRouteArgs splits "departure;destination;cost" as typed after /addroute
func ParseRouteArgs(args string) (departure, destination string, cost decimal.Decimal, err error) {
	parts := strings.Split(args, ";")
	if len(parts) != 3 {
		return "", "", decimal.Zero, ErrRouteArgs
	}
	if departure, err = NormalizeCity(parts[0]); err != nil {
		return "", "", decimal.Zero, err
	}
	if destination, err = NormalizeCity(parts[1]); err != nil {
		return "", "", decimal.Zero, err
	}
	if cost, err = ParseCost(parts[2]); err != nil {
		return "", "", decimal.Zero, err
	}
	return departure, destination, cost, nil
}
