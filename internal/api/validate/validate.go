package validate

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var emailRx = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Email checks shape only; normalization happens in the service layer.
func Email(v string) error {
	if v == "" {
		return fmt.Errorf("email is required")
	}
	if len(v) > 320 || !emailRx.MatchString(v) {
		return fmt.Errorf("invalid email")
	}
	return nil
}

func NonEmpty(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func MaxLen(field, v string, limit int) error {
	if len(v) > limit {
		return fmt.Errorf("%s exceeds %d characters", field, limit)
	}
	return nil
}

// UUID parses a path or query identifier. Malformed values are a client
// error, never a lookup miss.
func UUID(field, v string) (string, error) {
	id, err := uuid.Parse(v)
	if err != nil {
		return "", fmt.Errorf("%s must be a valid UUID", field)
	}
	return id.String(), nil
}

// Password enforces the minimum signup rule. Strength scoring is a
// client concern; the server only refuses trivially short secrets.
func Password(v string) error {
	if len(v) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}

// CollectionName bounds user-supplied collection titles.
func CollectionName(v string) error {
	if err := NonEmpty("name", v); err != nil {
		return err
	}
	return MaxLen("name", v, 100)
}
