package entity

import (
	"strings"

	"github.com/google/uuid"
)

// Address is a postal address owned by exactly one identity.
type Address struct {
	ID          uuid.UUID
	Name        string
	Street      string
	CountryCode string
}

func NewAddress(name, street, countryCode string) (Address, error) {
	name = strings.TrimSpace(name)
	street = strings.TrimSpace(street)
	cc := strings.ToUpper(strings.TrimSpace(countryCode))
	if name == "" || len(name) > 100 || street == "" || len(street) > 200 || !isAlpha2(cc) {
		return Address{}, ErrInvalidAddress
	}
	return Address{ID: uuid.New(), Name: name, Street: street, CountryCode: cc}, nil
}

func isAlpha2(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
