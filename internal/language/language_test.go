package language

import "testing"

func TestToISO2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"eng", "en"},
		{"fre", "fr"},
		{"fra", "fr"},
		{"ger", "de"},
		{"chi", "zh"},
		{"cze", "cs"},
		{"dut", "nl"},
		{"ukr", "uk"},
		{"english", "en"},
		{" German ", "de"},
		{"JAPANESE", "ja"},
		{"xy", "xy"},
		{"xyz", ""},
		{"klingon", ""},
		{"", ""},
		{" ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ToISO2(tt.input); got != tt.expected {
				t.Errorf("ToISO2(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "Auto-detect"},
		{"auto", "Auto-detect"},
		{"AUTO", "Auto-detect"},
		{"en", "English"},
		{"deu", "German"},
		{"zh", "Chinese"},
		{"spanish", "Spanish"},
		{"xy", "XY"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := DisplayName(tt.input); got != tt.expected {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
