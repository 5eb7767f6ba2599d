package app

import "fmt"

// DomainError is a service failure that already knows how to appear in
// the JSON error envelope. mapError unwraps it ahead of the generic
// sql/auth translations.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
