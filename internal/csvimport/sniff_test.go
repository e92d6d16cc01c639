package csvimport

import "testing"

func TestDetectDelimiter(t *testing.T) {
	cases := []struct {
		name string
		text string
		want rune
	}{
		{"comma", "a,b,c\n1,2,3\n4,5,6", ','},
		{"semicolon", "a;b;c\n1;2,5;3\n4;5,5;6", ';'},
		{"tab", "a\tb\tc\n1\t2\t3", '\t'},
		{"pipe", "a|b|c\n1|2|3", '|'},
		{"quoted commas", "a;b;c\n\"x, y\";2;3\n\"z, w\";5;6", ';'},
		{"single column falls back", "data\n2025-01-01", ','},
		{"first line fallback", "a;b\n1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11", ';'},
	}
	for _, tc := range cases {
		if got := DetectDelimiter(tc.text); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		" Odômetro ":  "odometro",
		"OBSERVAÇÕES": "observacoes",
		"KWh":         "kwh",
		"Data":        "data",
	}
	for in, want := range cases {
		if got := NormalizeHeader(in); got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
}
