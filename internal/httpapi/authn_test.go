package httpapi

import (
	"net/http"
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"case-insensitive scheme", "bearer abc", "abc", false},
		{"padded", "  Bearer   abc  ", "abc", false},
		{"empty", "", "", true},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "", true},
		{"scheme only", "Bearer ", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractBearerToken(tc.header)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got token %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPublicPaths(t *testing.T) {
	public := []struct {
		path   string
		method string
	}{
		{"/v1/auth/token", http.MethodPost},
		{"/v1/auth/introspect", http.MethodPost},
		{"/v1/auth/refresh", http.MethodPost},
		{"/v1/auth/logout", http.MethodPost},
		{"/healthz", http.MethodGet},
		{"/v1/users", http.MethodPost},
	}
	for _, tc := range public {
		if !isPublicPath(tc.path, tc.method) {
			t.Fatalf("expected %s %s to be public", tc.method, tc.path)
		}
	}

	private := []struct {
		path   string
		method string
	}{
		{"/v1/users", http.MethodGet},
		{"/v1/users/me", http.MethodGet},
		{"/v1/roles", http.MethodPost},
		{"/v1/users/abc", http.MethodDelete},
	}
	for _, tc := range private {
		if isPublicPath(tc.path, tc.method) {
			t.Fatalf("expected %s %s to require auth", tc.method, tc.path)
		}
	}
}
