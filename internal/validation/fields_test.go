package validation

import (
	"testing"

	"github.com/tracklog/tracklog/internal/types"
)

func TestParseHours(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2.5", "2.5", false},
		{"2,5", "2.5", false},
		{"2:30", "2.5", false},
		{"2h30m", "2.5", false},
		{"2h30", "2.5", false},
		{"2h", "2", false},
		{"45m", "0.75", false},
		{"2z", "", true},
		{"", "", true},
		{"1:75", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseHours(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHours(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("ParseHours(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseEstimatedHours(t *testing.T) {
	got, err := ParseEstimatedHours("")
	if err != nil || got != nil {
		t.Errorf("blank estimate = (%v, %v), want (nil, nil)", got, err)
	}
	if _, err := ParseEstimatedHours("-1"); err == nil {
		t.Error("expected error for negative estimate")
	}
	got, err = ParseEstimatedHours("3")
	if err != nil || got == nil || got.String() != "3" {
		t.Errorf("ParseEstimatedHours(3) = (%v, %v)", got, err)
	}
}

func TestParseIDList(t *testing.T) {
	ids, err := ParseIDList("4, 2,4")
	if err != nil {
		t.Fatalf("ParseIDList: %v", err)
	}
	if len(ids) != 2 || ids[0] != 4 || ids[1] != 2 {
		t.Errorf("ParseIDList = %v, want [4 2]", ids)
	}
	for _, s := range []string{"", "none"} {
		ids, err := ParseIDList(s)
		if err != nil || ids != nil {
			t.Errorf("ParseIDList(%q) = (%v, %v), want empty", s, ids, err)
		}
	}
	if _, err := ParseIDList("1,x"); err == nil {
		t.Error("expected error for non-numeric id")
	}
}

func TestParseOptionalID(t *testing.T) {
	id, err := ParseOptionalID("none")
	if err != nil || id != nil {
		t.Errorf("ParseOptionalID(none) = (%v, %v)", id, err)
	}
	id, err = ParseOptionalID("7")
	if err != nil || id == nil || *id != 7 {
		t.Errorf("ParseOptionalID(7) = (%v, %v)", id, err)
	}
	if _, err := ParseOptionalID("0"); err == nil {
		t.Error("zero is not a valid id")
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"1", "true", "billable", "YES"} {
		if v, err := ParseBool(s); err != nil || !v {
			t.Errorf("ParseBool(%q) = (%v, %v), want true", s, v, err)
		}
	}
	for _, s := range []string{"0", "false", "", "none"} {
		if v, err := ParseBool(s); err != nil || v {
			t.Errorf("ParseBool(%q) = (%v, %v), want false", s, v, err)
		}
	}
	if _, err := ParseBool("maybe"); err == nil {
		t.Error("expected error for maybe")
	}
}

func TestCheckCustomValue(t *testing.T) {
	list := &types.CustomField{ID: 1, Format: types.FormatList, PossibleValues: []string{"MySQL", "PostgreSQL", "Oracle"}}
	num := &types.CustomField{ID: 2, Format: types.FormatInt}
	short := &types.CustomField{ID: 3, Format: types.FormatString, MaxLength: 3}
	date := &types.CustomField{ID: 4, Format: types.FormatDate}

	tests := []struct {
		cf    *types.CustomField
		value string
		code  Code
		ok    bool
	}{
		{list, "Oracle", "", true},
		{list, "DB2", CodeInclusion, false},
		{list, "", "", true},
		{num, "125", "", true},
		{num, "12a", CodeNotANumber, false},
		{short, "abcd", CodeTooLong, false},
		{date, "2009-12-01", "", true},
		{date, "tomorrow", CodeNotADate, false},
	}
	for _, tt := range tests {
		code, ok := CheckCustomValue(tt.cf, tt.value)
		if ok != tt.ok || code != tt.code {
			t.Errorf("CheckCustomValue(cf %d, %q) = (%q, %v), want (%q, %v)", tt.cf.ID, tt.value, code, ok, tt.code, tt.ok)
		}
	}
}

func TestNormalizeCustomValue(t *testing.T) {
	num := &types.CustomField{Format: types.FormatInt}
	if got := NormalizeCustomValue(num, "0125"); got != "125" {
		t.Errorf("NormalizeCustomValue(int, 0125) = %q", got)
	}
	flt := &types.CustomField{Format: types.FormatFloat}
	if got := NormalizeCustomValue(flt, "2.50"); got != "2.5" {
		t.Errorf("NormalizeCustomValue(float, 2.50) = %q", got)
	}
	str := &types.CustomField{Format: types.FormatString}
	if got := NormalizeCustomValue(str, " x "); got != " x " {
		t.Errorf("string values are stored verbatim, got %q", got)
	}
}

func TestFieldErrorMessage(t *testing.T) {
	fe := NewFieldError("subject", CodeBlank)
	if fe.Error() != "subject can't be blank" {
		t.Errorf("Error() = %q", fe.Error())
	}
}
