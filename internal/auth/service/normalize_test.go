package service

import "testing"

func TestNormalizeEmail(t *testing.T) {
	if got := normalizeEmail("  Teacher@School.EDU "); got != "teacher@school.edu" {
		t.Errorf("normalizeEmail = %q", got)
	}
}

func TestNormalizePhone(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"+1 (555) 010-0199", "+15550100199"},
		{"0555 0100", "05550100"},
		{"teacher@school.edu", ""},
		{"+", ""},
		{"55+5", "555"},
	}
	for _, tc := range testCases {
		if got := normalizePhone(tc.in); got != tc.want {
			t.Errorf("normalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
