package textutil

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		value string
		limit int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo wörld", 4, "héll"},
		{"日本語のタイトル", 3, "日本語"},
		{"unlimited", 0, "unlimited"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.value, tt.limit); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.value, tt.limit, got, tt.want)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name  string
		value string
		limit int
		want  string
	}{
		{"plain", "Go Concurrency Patterns", 0, "Go Concurrency Patterns"},
		{"reserved", `a/b\c:d*e?f"g<h>i|j`, 0, "a_b_c_d_e_f_g_h_i_j"},
		{"control", "tab\there\nnewline", 0, "tabherenewline"},
		{"trim dots", "  ...title...  ", 0, "title"},
		{"truncate then trim", "Talk about things. More", 18, "Talk about things"},
		{"empty", "   ", 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFileName(tt.value, tt.limit); got != tt.want {
				t.Errorf("SanitizeFileName(%q, %d) = %q, want %q", tt.value, tt.limit, got, tt.want)
			}
		})
	}
}
