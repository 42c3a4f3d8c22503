package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	filled := filepath.Join(dir, "token")
	if err := os.WriteFile(filled, []byte("  from-file \n"), 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write empty file: %v", err)
	}

	login := filepath.Join(dir, "login.json")
	if err := os.WriteFile(login, []byte(`{"access_token": "eyJ.abc.def", "token_type": "bearer"}`), 0o600); err != nil {
		t.Fatalf("write login file: %v", err)
	}

	t.Setenv("JOBPILOT_TEST_TOKEN", "from-env")

	tests := []struct {
		name    string
		src     Source
		want    string
		wantErr string
	}{
		{name: "file wins over value", src: Source{File: filled, Value: "inline"}, want: "from-file"},
		{name: "inline value", src: Source{Value: " inline "}, want: "inline"},
		{name: "env fallback", src: Source{Env: "JOBPILOT_TEST_TOKEN"}, want: "from-env"},
		{name: "value wins over env", src: Source{Value: "inline", Env: "JOBPILOT_TEST_TOKEN"}, want: "inline"},
		{name: "empty file", src: Source{Name: "portal token", File: empty, Env: "JOBPILOT_TEST_TOKEN"}, wantErr: "is empty"},
		{name: "missing file", src: Source{File: filepath.Join(dir, "missing")}, wantErr: "reading secret"},
		{name: "nothing configured", src: Source{Name: "portal token"}, wantErr: "portal token is not configured"},
		{name: "field from login response", src: Source{File: login, Field: "access_token"}, want: "eyJ.abc.def"},
		{name: "field ignored for plain secret", src: Source{File: filled, Field: "access_token"}, want: "from-file"},
		{name: "missing field", src: Source{Name: "portal token", File: login, Field: "refresh_token"}, wantErr: `portal token has no "refresh_token" field`},
		{name: "broken json", src: Source{Value: "{not json", Field: "access_token"}, wantErr: "parsing secret as json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
