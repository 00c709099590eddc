package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Status represents the outcome of a single dispatch attempt.
type Status string

const (
	StatusSent   Status = "SENT"
	StatusFailed Status = "FAILED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusSent, StatusFailed:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// MaxBodyLength caps the rendered notification body (in characters).
const MaxBodyLength = 10000

var validate = validator.New()

// Notification is a rendered absence notification addressed to one learner.
type Notification struct {
	Recipient   string
	StudentName string
	Subject     string
	Body        string
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if err := validate.Var(n.Recipient, "email"); err != nil {
		return fmt.Errorf("%w: invalid recipient address %q", ErrValidation, n.Recipient)
	}
	if strings.TrimSpace(n.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if strings.TrimSpace(n.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}

	bodyLen := len([]rune(n.Body))
	if bodyLen > MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxBodyLength, bodyLen)
	}

	return nil
}
