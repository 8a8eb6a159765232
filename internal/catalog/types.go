package catalog

import (
	"regexp"
	"strconv"
	"strings"
)

// ParamType is the declared type of an intent parameter.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeInt    ParamType = "int"
	TypeDate   ParamType = "date"
)

// datePatterns accept loose date forms: 2023-12-25, 12/25/2023, 1/1/2023,
// December 25, 25 December.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`\d{2}/\d{2}/\d{4}`),
	regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
	regexp.MustCompile(`[A-Za-z]+ \d{1,2}`),
	regexp.MustCompile(`\d{1,2} [A-Za-z]+`),
}

// Known reports whether t is a supported type.
func (t ParamType) Known() bool {
	switch t {
	case TypeString, TypeInt, TypeDate:
		return true
	default:
		return false
	}
}

// Describe returns a short human description used in extraction prompts.
func (t ParamType) Describe() string {
	switch t {
	case TypeInt:
		return "Numeric value"
	case TypeDate:
		return "Date in various formats (YYYY-MM-DD, MM/DD/YYYY, December 25, etc.)"
	default:
		return "Text value"
	}
}

// ValidateValue reports whether v is acceptable for a parameter of type t.
func ValidateValue(t ParamType, v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	switch t {
	case TypeInt:
		_, err := strconv.Atoi(v)
		return err == nil
	case TypeDate:
		for _, re := range datePatterns {
			if re.MatchString(v) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
