// Package validation parses raw field values and describes field errors.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tracklog/tracklog/internal/types"
)

// Code identifies why a field was rejected.
type Code string

// Field error codes
const (
	CodeBlank                Code = "blank"
	CodeInvalid              Code = "invalid"
	CodeInclusion            Code = "inclusion"
	CodeNotANumber           Code = "not_a_number"
	CodeNotADate             Code = "not_a_date"
	CodeTooLong              Code = "too_long"
	CodeGreaterThanStartDate Code = "greater_than_start_date"
)

var codeMessages = map[Code]string{
	CodeBlank:                "can't be blank",
	CodeInvalid:              "is invalid",
	CodeInclusion:            "is not included in the list",
	CodeNotANumber:           "is not a number",
	CodeNotADate:             "is not a valid date",
	CodeTooLong:              "is too long",
	CodeGreaterThanStartDate: "must be greater than start date",
}

// FieldError is one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// NewFieldError builds a FieldError with the standard message for code.
func NewFieldError(field string, code Code) FieldError {
	return FieldError{Field: field, Code: code, Message: codeMessages[code]}
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// NoneValue clears a field in bulk edits, where blank means "leave as is".
const NoneValue = "none"

// ParseID parses a positive integer reference.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// ParseOptionalID parses an optional reference; blank and "none" mean nil.
func ParseOptionalID(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == NoneValue {
		return nil, nil
	}
	id, err := ParseID(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ParseIDList parses a comma separated id list; blank and "none" mean empty.
func ParseIDList(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == NoneValue {
		return nil, nil
	}
	var ids []int64
	seen := make(map[int64]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := ParseID(part)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// hoursRe accepts 2h, 2h30, 2h30m, 30m.
var hoursRe = regexp.MustCompile(`^(?:(\d+)\s*h)?\s*(?:(\d+)\s*m?)?$`)

// ParseHours parses a duration in hours. Accepted forms: 2.5, 2,5, 2:30,
// 2h30m, 2h, 45m.
func ParseHours(s string) (decimal.Decimal, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty hours")
	}
	if d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1)); err == nil {
		return d, nil
	}
	if h, m, ok := strings.Cut(s, ":"); ok {
		hours, err1 := strconv.Atoi(h)
		mins, err2 := strconv.Atoi(m)
		if err1 != nil || err2 != nil || mins >= 60 {
			return decimal.Zero, fmt.Errorf("invalid hours %q", s)
		}
		return hoursAndMinutes(hours, mins), nil
	}
	if !strings.ContainsAny(s, "hm") {
		return decimal.Zero, fmt.Errorf("invalid hours %q", s)
	}
	match := hoursRe.FindStringSubmatch(s)
	if match == nil || (match[1] == "" && match[2] == "") {
		return decimal.Zero, fmt.Errorf("invalid hours %q", s)
	}
	// A bare number after h is minutes; "45m" alone is minutes too.
	hours, _ := strconv.Atoi(match[1])
	mins, _ := strconv.Atoi(match[2])
	return hoursAndMinutes(hours, mins), nil
}

func hoursAndMinutes(h, m int) decimal.Decimal {
	return decimal.NewFromInt(int64(h)).Add(decimal.NewFromInt(int64(m)).Div(decimal.NewFromInt(60))).Round(2)
}

// ParseEstimatedHours parses an optional non-negative estimate.
func ParseEstimatedHours(s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" || s == NoneValue {
		return nil, nil
	}
	d, err := ParseHours(s)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative hours %q", s)
	}
	return &d, nil
}

// ParseBool parses a checkbox-style flag.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on", "billable":
		return true, nil
	case "0", "false", "no", "off", "", NoneValue:
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// CheckCustomValue validates a non-blank custom field value against its
// format. Blank values are checked by the caller (required fields).
func CheckCustomValue(cf *types.CustomField, value string) (Code, bool) {
	if value == "" {
		return "", true
	}
	if cf.MaxLength > 0 && len([]rune(value)) > cf.MaxLength {
		return CodeTooLong, false
	}
	switch cf.Format {
	case types.FormatInt:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return CodeNotANumber, false
		}
	case types.FormatFloat:
		if _, err := decimal.NewFromString(value); err != nil {
			return CodeNotANumber, false
		}
	case types.FormatDate:
		if _, err := types.ParseDate(value); err != nil {
			return CodeNotADate, false
		}
	case types.FormatBool:
		if value != "0" && value != "1" {
			return CodeInclusion, false
		}
	case types.FormatList:
		for _, v := range cf.PossibleValues {
			if v == value {
				return "", true
			}
		}
		return CodeInclusion, false
	}
	return "", true
}

// NormalizeCustomValue returns the stored form of a custom value so that
// numerically equal inputs compare equal ("05" and "5").
func NormalizeCustomValue(cf *types.CustomField, value string) string {
	if value == "" {
		return ""
	}
	switch cf.Format {
	case types.FormatInt:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return strconv.FormatInt(n, 10)
		}
	case types.FormatFloat:
		if d, err := decimal.NewFromString(value); err == nil {
			return d.String()
		}
	case types.FormatDate:
		if d, err := types.ParseDate(value); err == nil {
			return d.String()
		}
	}
	return value
}
