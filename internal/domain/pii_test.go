package domain

import "testing"

func TestClassifyPIIField(t *testing.T) {
	cases := []struct {
		name     string
		category PIICategory
		isPII    bool
	}{
		{"ssn", PIISSN, true},
		{"SSN", PIISSN, true},
		{"social_security_number", PIISSN, true},
		{"dob", PIIDateOfBirth, true},
		{"email_address", PIIEmail, true},
		{"passport", PIIPassportNumber, true},
		{"credit_card", PIICardNumber, true},
		{"full_name", "", false},
		{"ssn_hash", "", false},
		{"notes", "", false},
	}
	for _, tc := range cases {
		category, ok := ClassifyPIIField(tc.name)
		if ok != tc.isPII {
			t.Fatalf("ClassifyPIIField(%q) classified=%v, want %v", tc.name, ok, tc.isPII)
		}
		if ok && category != tc.category {
			t.Fatalf("ClassifyPIIField(%q) = %s, want %s", tc.name, category, tc.category)
		}
	}
}
