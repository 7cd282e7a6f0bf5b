package utility

import (
	"github.com/google/uuid"
	"strconv"
)

// ToFloat parses a metering value; samples arrive as decimal strings.
func ToFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// ToInt converts a string to an integer, tolerating decimal notation.
func ToInt(s string) int {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}

func NewUUID() string {
	return uuid.New().String()
}
