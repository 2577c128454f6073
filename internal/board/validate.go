package board

import (
	"errors"
	"strings"
)

const (
	CodeTextRequired          = "TEXT_REQUIRED"
	CodeJustificationRequired = "JUSTIFICATION_REQUIRED"
	CodeUsernameRequired      = "USERNAME_REQUIRED"
	CodeInvalidPriority       = "INVALID_PRIORITY"
	CodeNoChange              = "NO_CHANGE"
)

// ValidationError reports input rejected before any write is attempted.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, code, message string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: message}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

type AddInput struct {
	Text          string   `json:"text"`
	Justification string   `json:"justification"`
	Priority      Priority `json:"priority"`
}

// Normalize trims the input and defaults the bucket to must.
func (in AddInput) Normalize() (AddInput, error) {
	out := AddInput{
		Text:          strings.TrimSpace(in.Text),
		Justification: strings.TrimSpace(in.Justification),
	}
	if out.Text == "" {
		return AddInput{}, invalid("text", CodeTextRequired, "functionality text is required")
	}
	if out.Justification == "" {
		return AddInput{}, invalid("justification", CodeJustificationRequired, "justification is required")
	}
	if strings.TrimSpace(string(in.Priority)) == "" {
		out.Priority = Must
		return out, nil
	}
	p, err := ParsePriority(string(in.Priority))
	if err != nil {
		return AddInput{}, err
	}
	out.Priority = p
	return out, nil
}

// MoveInput is a confirmed move. From is optional; when set it must still
// match the stored priority at commit time.
type MoveInput struct {
	From          Priority `json:"fromPriority,omitempty"`
	To            Priority `json:"toPriority"`
	Justification string   `json:"justification"`
}

func (in MoveInput) Normalize() (MoveInput, error) {
	out := MoveInput{Justification: strings.TrimSpace(in.Justification)}
	if out.Justification == "" {
		return MoveInput{}, invalid("justification", CodeJustificationRequired, "justification is required")
	}
	to, err := ParsePriority(string(in.To))
	if err != nil {
		return MoveInput{}, err
	}
	out.To = to
	if strings.TrimSpace(string(in.From)) != "" {
		from, err := ParsePriority(string(in.From))
		if err != nil {
			return MoveInput{}, err
		}
		out.From = from
	}
	return out, nil
}

// NormalizeUsername trims a display name chosen at registration.
func NormalizeUsername(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", invalid("username", CodeUsernameRequired, "username is required")
	}
	return name, nil
}

// NoChange rejects a move whose target is the card's current bucket.
func NoChange(p Priority) error {
	return invalid("toPriority", CodeNoChange, "functionality is already in "+string(p))
}
