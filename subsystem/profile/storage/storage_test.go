package storage

import "testing"

func TestProfileValid(t *testing.T) {
	tests := []struct {
		name     string
		profile  *Profile
		expected bool
	}{
		{"valid profile", &Profile{RadioID: "AA11BB22", Label: "truck"}, true},
		{"no label is fine", &Profile{RadioID: "AA11BB22"}, true},
		{"empty radio ID", &Profile{Label: "truck"}, false},
		{"nil profile", nil, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if valid := test.profile.Valid(); valid != test.expected {
				t.Errorf("expected profile validity to be %v, but got %v", test.expected, valid)
			}
		})
	}
}
