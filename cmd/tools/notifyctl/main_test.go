package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hiring-notifications/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAPICommands(t *testing.T) {
	type call struct {
		method, path, body string
	}
	var got call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = call{method: r.Method, path: r.URL.Path, body: string(b)}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tests := []struct {
		name string
		args []string
		want call
	}{
		{
			name: "status set",
			args: []string{"status", "set", "--org", "org-1", "--applicant", "a-1", "--status", "approved"},
			want: call{http.MethodPut, "/v1/orgs/org-1/applicants/a-1/status", `{"status":"approved"}`},
		},
		{
			name: "status get",
			args: []string{"status", "get", "BRUN-ABC234"},
			want: call{http.MethodGet, "/v1/status/BRUN-ABC234", ""},
		},
		{
			name: "dispatch",
			args: []string{"dispatch", "--org", "org-1", "--applicant", "a-1", "--status", "rejected"},
			want: call{http.MethodPost, "/v1/orgs/org-1/applicants/a-1/notifications", `{"status":"rejected"}`},
		},
		{
			name: "preview",
			args: []string{"preview", "--org", "org-1", "--applicant", "a-1", "--status", "approved"},
			want: call{http.MethodPost, "/v1/orgs/org-1/applicants/a-1/preview", `{"status":"approved"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append(tt.args, "--api-url", srv.URL)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out, `"ok":true`)
		})
	}
}

func TestAPICommands_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"RESOURCE_NOT_FOUND"}}`))
	}))
	defer srv.Close()

	_, err := run(t, "status", "get", "BRUN-NOPE22", "--api-url", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=404")
}

func TestRequiredFlags(t *testing.T) {
	_, err := run(t, "dispatch", "--org", "org-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, "token", "-n", "3", "--prefix", "HR-", "--length", "8")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Regexp(t, `^HR-[ABCDEFGHJKMNPQRSTUVWXYZ23456789]{8}$`, line)
	}
}

func TestRenderCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "applicant.json")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"id":"a-1","status":"approved","email":"ann@x.com","data":{"contact":{"first_name":"Ann"}}}`), 0o600))

	out, err := run(t, "render", "--applicant", path,
		"--subject", "Hi {name}",
		"--body", `"Status: {{status}}\n  Ref {{ unknown }}"`,
		"--alias", "name=contact.first_name",
	)
	require.NoError(t, err)

	var msg models.RenderedMessage
	require.NoError(t, json.Unmarshal([]byte(out), &msg))
	assert.Equal(t, models.RenderedMessage{
		To:      "ann@x.com",
		Subject: "Hi Ann",
		Body:    "Status: approved\nRef {{ unknown }}",
	}, msg)
}
