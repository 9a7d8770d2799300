package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/uits-lms/macrovars/internal/config"
	"github.com/uits-lms/macrovars/internal/macro"
)

const courseJSON = `{"id": 1111111, "name": "Intro", "sis_course_id": "THE_SIS_COURSE_ID"}`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvCanvasToken,
		config.EnvAuthClientSecret,
		config.EnvSUDSDSN,
		"OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	clearEnv(t)
	var stdout, stderr bytes.Buffer
	root := newRootCommand(strings.NewReader(stdin), &stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestTokensCommand(t *testing.T) {
	stdout, _, err := execute(t, "", "tokens")
	if err != nil {
		t.Fatalf("tokens error = %v", err)
	}
	want := strings.Join(macro.Tokens(), "\n") + "\n"
	if stdout != want {
		t.Errorf("tokens output = %q, want %q", stdout, want)
	}
}

func TestRenderWithoutEnrichment(t *testing.T) {
	stdout, _, err := execute(t, "",
		"render",
		"--template", "Hi [[USER_FIRST_NAME]] ([[USER_ROLE]])",
		"--first-name", "John",
		"--user-role", "Teaching Assistant",
	)
	if err != nil {
		t.Fatalf("render error = %v", err)
	}
	if stdout != "Hi John (Teaching+Assistant)\n" {
		t.Errorf("render output = %q", stdout)
	}
}

func TestRenderTemplateFromStdin(t *testing.T) {
	stdout, _, err := execute(t, "[[USER_ID]]\n",
		"render", "--template-file", "-", "--user-id", "000123456789")
	if err != nil {
		t.Fatalf("render error = %v", err)
	}
	if stdout != "000123456789\n" {
		t.Errorf("render output = %q", stdout)
	}
}

func TestRenderWithCanvas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/courses/1111111" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer canvas-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(courseJSON))
	}))
	defer srv.Close()

	tests := []struct {
		name       string
		role       string
		want       string
		wantStderr string
	}{
		{"learner is enriched", "Learner", "THE_SIS_COURSE_ID\n", ""},
		{
			name:       "instructor keeps mapper value",
			role:       "Instructor",
			want:       "1234\n",
			wantStderr: "[macrovars] roles [Instructor] do not qualify for enrichment (qualifying roles: Learner)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, err := execute(t, "",
				"render",
				"--template", "[[SIS_COURSE_ID]]",
				"--canvas-url", srv.URL,
				"--canvas-token", "canvas-token",
				"--canvas-course-id", "1111111",
				"--sis-course-id", "1234",
				"--role", tt.role,
			)
			if err != nil {
				t.Fatalf("render error = %v", err)
			}
			if stdout != tt.want {
				t.Errorf("render output = %q, want %q", stdout, tt.want)
			}
			if tt.wantStderr == "" && stderr != "" {
				t.Errorf("stderr = %q, want empty", stderr)
			}
			if !strings.Contains(stderr, tt.wantStderr) {
				t.Errorf("stderr = %q, want %q", stderr, tt.wantStderr)
			}
		})
	}
}

func TestRenderLookupFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, _, err := execute(t, "",
		"render",
		"--template", "[[SIS_COURSE_ID]]",
		"--canvas-url", srv.URL,
		"--canvas-course-id", "42",
		"--role", "Learner",
	)
	if err == nil {
		t.Fatal("render error = nil, want lookup failure")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("render error = %v", err)
	}
}

func TestRenderJSONFormat(t *testing.T) {
	stdout, _, err := execute(t, "",
		"render",
		"--template", "[[USER_EID]]",
		"--network-id", "jsmith",
		"--format", "json",
	)
	if err != nil {
		t.Fatalf("render error = %v", err)
	}
	var got renderResult
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, stdout)
	}
	if got.Output != "jsmith" || got.Mapper.UserNetworkID != "jsmith" {
		t.Errorf("render result = %+v", got)
	}
}

func TestRenderRequiresTemplate(t *testing.T) {
	_, _, err := execute(t, "", "render")
	if err == nil || !strings.Contains(err.Error(), "template is required") {
		t.Errorf("render error = %v, want template is required", err)
	}
}

func TestRenderRejectsInvalidConfig(t *testing.T) {
	_, _, err := execute(t, "", "render", "--template", "x", "--format", "xml")
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("render error = %v, want config.ValidationError", err)
	}
	if issues := verr.Issues(); len(issues) != 1 || !strings.Contains(issues[0], "format") {
		t.Errorf("issues = %v", issues)
	}
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	roster := filepath.Join(dir, "roster.csv")
	data := "first_name,last_name,role\nJohn,Smith,Learner\nJane,Doe,Teaching Assistant\n"
	if err := os.WriteFile(roster, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, "",
		"batch",
		"--feeder-path", roster,
		"--template", "[[USER_FIRST_NAME]] [[USER_LAST_NAME]] [[USER_ROLE]]",
		"--format", "json",
		"--concurrency", "2",
	)
	if err != nil {
		t.Fatalf("batch error = %v", err)
	}

	var report struct {
		RunID    string `json:"run_id"`
		Rendered int    `json:"rendered"`
		Results  []struct {
			Index  int    `json:"index"`
			Output string `json:"output"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout)
	}
	if report.RunID == "" {
		t.Error("run id is empty")
	}
	if report.Rendered != 2 || len(report.Results) != 2 {
		t.Fatalf("report = %+v", report)
	}
	want := []string{"John Smith Learner", "Jane Doe Teaching+Assistant"}
	for i, res := range report.Results {
		if res.Index != i || res.Output != want[i] {
			t.Errorf("result %d = %+v, want %q", i, res, want[i])
		}
	}
}

func TestBatchWritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	roster := filepath.Join(dir, "roster.json")
	if err := os.WriteFile(roster, []byte(`[{"user_id": "1"}, {"user_id": "2"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "report.txt")

	stdout, _, err := execute(t, "",
		"batch",
		"--feeder-path", roster,
		"--template", "id=[[USER_ID]]",
		"--output", out,
	)
	if err != nil {
		t.Fatalf("batch error = %v", err)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"#1 id=1", "#2 id=2", "--- Batch Results ---"} {
		if !strings.Contains(string(data), line) {
			t.Errorf("report missing %q:\n%s", line, data)
		}
	}
}

func TestBatchReportsFailedRecords(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	roster := filepath.Join(dir, "roster.csv")
	data := "canvas_course_id,roles\n42,Learner\n42,Instructor\n"
	if err := os.WriteFile(roster, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, "",
		"batch",
		"--feeder-path", roster,
		"--template", "[[CANVAS_COURSE_ID]]",
		"--canvas-url", srv.URL,
	)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 records failed") {
		t.Fatalf("batch error = %v, want 1 of 2 records failed", err)
	}
	if !strings.Contains(stdout, "#1 ERROR") || !strings.Contains(stdout, "#2 42") {
		t.Errorf("report = %s", stdout)
	}
}

func TestBatchRequiresRoster(t *testing.T) {
	_, _, err := execute(t, "", "batch", "--template", "x")
	if err == nil || !strings.Contains(err.Error(), "--feeder-path") {
		t.Errorf("batch error = %v", err)
	}
}

func TestCheckCommand(t *testing.T) {
	t.Run("known tokens", func(t *testing.T) {
		stdout, stderr, err := execute(t, "", "check", "--template", "[[USER_ID]] [[CLASS_NBR]]")
		if err != nil {
			t.Fatalf("check error = %v", err)
		}
		if stdout != "template OK\n" || stderr != "" {
			t.Errorf("stdout = %q, stderr = %q", stdout, stderr)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		_, stderr, err := execute(t, "", "check", "--template", "[[USER_FIRST]] [[NOPE]]")
		if err == nil {
			t.Fatal("check error = nil, want error")
		}
		if !strings.Contains(err.Error(), "2 unknown") {
			t.Errorf("check error = %v", err)
		}
		if !strings.Contains(stderr, "[macrovars] unknown token [[USER_FIRST]] (did you mean [[USER_FIRST_NAME]]") {
			t.Errorf("stderr = %q", stderr)
		}
	})
}

func TestReadTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tmpl.txt")
	if err := os.WriteFile(path, []byte("from file"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     config.Config
		stdin   string
		want    string
		wantErr bool
	}{
		{"inline", config.Config{Template: "inline"}, "", "inline", false},
		{"file", config.Config{TemplateFile: path}, "", "from file", false},
		{"stdin", config.Config{TemplateFile: "-"}, "piped", "piped", false},
		{"missing file", config.Config{TemplateFile: filepath.Join(dir, "nope")}, "", "", true},
		{"none", config.Config{}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			got, err := readTemplate(&cfg, strings.NewReader(tt.stdin))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readTemplate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("readTemplate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStderrLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newStderrLogger(&buf)
	logger.Warn("record %d: %s\n", 3, "boom")
	if got := buf.String(); got != "[macrovars] record 3: boom\n" {
		t.Errorf("Warn() wrote %q", got)
	}

	var nilLogger *stderrLogger
	nilLogger.Warn("ignored")
}
