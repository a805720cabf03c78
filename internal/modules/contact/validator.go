package contact

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
)

// Result is the outcome of validating one field. Normalized is only set when
// IsValid is true and is the value that gets stored.
type Result struct {
	IsValid     bool     `json:"isValid"`
	Error       string   `json:"error,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Normalized  string   `json:"normalized,omitempty"`
}

var (
	nameRe       = regexp.MustCompile(`^[\p{L}][\p{L} '\-]*$`)
	phoneNoiseRe = regexp.MustCompile(`[\s\-.()]`)
	ukMobileRe   = regexp.MustCompile(`^(?:07|\+447|447|00447)(\d{9})$`)
	ukAnyRe      = regexp.MustCompile(`^(?:0|\+44|44|0044)([1-37]\d{8,9})$`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

var phoneSuggestions = []string{
	"Use a UK mobile number like 07123 456789",
	"Or include the country code: +44 7123 456789",
}

func invalid(msg string, suggestions ...string) Result {
	return Result{IsValid: false, Error: msg, Suggestions: suggestions}
}

func valid(normalized string) Result {
	return Result{IsValid: true, Normalized: normalized}
}

func ValidateName(input string) Result {
	s := spacesRe.ReplaceAllString(strings.TrimSpace(input), " ")
	s = strings.ReplaceAll(s, "’", "'")
	if s == "" {
		return invalid("Please tell me your name.", "For example: Sarah Jones")
	}
	n := utf8.RuneCountInString(s)
	if n < 2 {
		return invalid("That name looks too short.", "Please enter at least 2 characters")
	}
	if n > 50 {
		return invalid("That name is too long.", "Please use 50 characters or fewer")
	}
	if !nameRe.MatchString(s) {
		return invalid("Names can only contain letters, spaces, hyphens and apostrophes.", "For example: Mary-Jane O'Neill")
	}
	return valid(s)
}

// ValidatePhone accepts UK mobile numbers and normalizes them to 07XXXXXXXXX.
func ValidatePhone(input string) Result {
	s := strings.TrimSpace(input)
	if s == "" {
		return invalid("Please enter a phone number.", phoneSuggestions...)
	}
	m := ukMobileRe.FindStringSubmatch(phoneNoiseRe.ReplaceAllString(s, ""))
	if m == nil {
		return invalid("That doesn't look like a valid UK mobile number.", phoneSuggestions...)
	}
	return valid("07" + m[1])
}

// validatePhoneLenient also accepts UK landlines.
func validatePhoneLenient(input string) Result {
	if r := ValidatePhone(input); r.IsValid {
		return r
	}
	s := phoneNoiseRe.ReplaceAllString(strings.TrimSpace(input), "")
	if m := ukAnyRe.FindStringSubmatch(s); m != nil {
		return valid("0" + m[1])
	}
	return ValidatePhone(input)
}

func ValidateEmail(input string) Result {
	s := strings.TrimSpace(input)
	if s == "" {
		return invalid("Please enter an email address.", "For example: name@example.com")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return invalid("That doesn't look like a valid email address.", "Use the format name@example.com")
	}
	at := strings.LastIndex(s, "@")
	local, domain := s[:at], s[at+1:]
	if local == "" || !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") || strings.Contains(domain, "..") {
		return invalid("That email address is missing a valid domain.", "Use the format name@example.com")
	}
	return valid(local + "@" + strings.ToLower(domain))
}

func ValidatePreferredContact(input string) Result {
	s := strings.ToLower(strings.TrimSpace(input))
	switch s {
	case types.PreferPhone, types.PreferEmail, types.PreferBoth:
		return valid(s)
	case "":
		return invalid("Please choose how you'd like to be contacted.", "phone", "email", "both")
	}
	return invalid("Please choose phone, email or both.", "phone", "email", "both")
}

func ValidateBestTime(input string) Result {
	s := spacesRe.ReplaceAllString(strings.TrimSpace(input), " ")
	if s == "" {
		return invalid("Please tell me a good time to call.", "mornings", "afternoons", "after 6pm")
	}
	if utf8.RuneCountInString(s) > 100 {
		return invalid("Please keep that a little shorter.", "mornings", "afternoons", "after 6pm")
	}
	return valid(s)
}

// ValidateAlternativeContact accepts either a phone number or an email.
func ValidateAlternativeContact(input string) Result {
	s := strings.TrimSpace(input)
	if s == "" {
		return invalid("Please enter another phone number or email address.", "07123 456789", "name@example.com")
	}
	if strings.Contains(s, "@") {
		return ValidateEmail(s)
	}
	if r := validatePhoneLenient(s); r.IsValid {
		return r
	}
	return invalid("Please enter a phone number or an email address.", "07123 456789", "name@example.com")
}

// Validate dispatches by field using strict rules.
func Validate(field types.ContactField, input string) Result {
	return validate(field, input, false)
}

func validate(field types.ContactField, input string, lenient bool) Result {
	switch field {
	case types.FieldName:
		return ValidateName(input)
	case types.FieldPhone:
		if lenient {
			return validatePhoneLenient(input)
		}
		return ValidatePhone(input)
	case types.FieldEmail:
		return ValidateEmail(input)
	case types.FieldPreferredContact:
		return ValidatePreferredContact(input)
	case types.FieldBestTimeToCall:
		return ValidateBestTime(input)
	case types.FieldAlternativeContact:
		return ValidateAlternativeContact(input)
	}
	return invalid("Unsupported field.")
}
