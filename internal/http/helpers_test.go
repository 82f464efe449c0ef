package http

import "testing"

func TestSafeRedirect(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/notes", "/notes"},
		{"/notes?sort=new", "/notes?sort=new"},
		{"", "/"},
		{"//evil.example", "/"},
		{`/\evil.example`, "/"},
		{`/\/evil.example`, "/"},
		{`/\\evil.example`, "/"},
		{"/%5C%5Cevil.example", "/"},
		{"/%5Cevil.example", "/"},
		{"https://evil.example", "/"},
		{"http://evil.example/notes", "/"},
		{"%2F%2Fevil.example", "/"},
		{"javascript:alert(1)", "/"},
		{"notes", "/"},
	}
	for _, tc := range cases {
		if got := safeRedirect(tc.in); got != tc.want {
			t.Errorf("safeRedirect(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
