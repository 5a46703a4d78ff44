package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/chatgate/internal/config"
	"github.com/joho/godotenv"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv(envPasscode, "letmein")
	t.Setenv(envOpenAIKey, "sk-test")
	t.Setenv(envAnthropicKey, "sk-ant-test")
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	want := map[string]bool{"version": false, "start": false, "config": false, "history": false, "service": false}
	for _, c := range rootCmd().Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestVersionCmd_ListsModules(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"gateway.http", "history.file", "history.sqlite", "provider.anthropic", "provider.openai"} {
		if !strings.Contains(out, id) {
			t.Errorf("version output missing %s:\n%s", id, out)
		}
	}
}

func TestRenderStarterConfig_Validates(t *testing.T) {
	setSecrets(t)

	tests := []struct {
		name        string
		providers   []string
		history     string
		wantDefault string
		wantModes   int
	}{
		{"openai", []string{providerOpenAI}, "history.file", "fast", 3},
		{"anthropic", []string{providerAnthropic}, "history.sqlite", "claude", 1},
		{"both", []string{providerOpenAI, providerAnthropic}, "history.file", "fast", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := defaultAnswers()
			a.Providers = tt.providers
			a.History = tt.history

			raw, err := renderStarterConfig(a)
			if err != nil {
				t.Fatal(err)
			}
			cfg, err := config.Parse(raw, "starter")
			if err != nil {
				t.Fatalf("Parse: %v\n%s", err, raw)
			}
			if err := config.Validate(cfg); err != nil {
				t.Fatalf("Validate: %v\n%s", err, raw)
			}
			modes, err := cfg.ModeTable()
			if err != nil {
				t.Fatal(err)
			}
			if got := modes.Default().ID; got != tt.wantDefault {
				t.Errorf("default mode = %q, want %q", got, tt.wantDefault)
			}
			if got := len(modes.List()); got != tt.wantModes {
				t.Errorf("modes = %d, want %d", got, tt.wantModes)
			}
			if _, ok := cfg.Modules[tt.history]; !ok {
				t.Errorf("history module %s not configured", tt.history)
			}
		})
	}
}

func TestRenderStarterConfig_SecretsAreReferences(t *testing.T) {
	t.Parallel()

	a := defaultAnswers()
	a.Passcode = "hunter2"
	a.OpenAIKey = "sk-live-secret"
	raw, err := renderStarterConfig(a)
	if err != nil {
		t.Fatal(err)
	}
	s := string(raw)
	if strings.Contains(s, "hunter2") || strings.Contains(s, "sk-live-secret") {
		t.Errorf("secrets inlined in config:\n%s", s)
	}
	if !strings.Contains(s, "${"+envPasscode+"}") {
		t.Errorf("passcode reference missing:\n%s", s)
	}
}

func TestRenderStarterConfig_NoProvider(t *testing.T) {
	t.Parallel()

	a := defaultAnswers()
	a.Providers = nil
	if _, err := renderStarterConfig(a); err == nil {
		t.Fatal("expected error without providers")
	}
}

func TestRenderEnvFile(t *testing.T) {
	t.Parallel()

	a := defaultAnswers()
	a.Passcode = "pass word"
	a.OpenAIKey = "sk-1"
	a.AnthropicKey = "unused"

	raw, err := renderEnvFile(a)
	if err != nil {
		t.Fatal(err)
	}
	env, err := godotenv.Unmarshal(string(raw))
	if err != nil {
		t.Fatal(err)
	}
	if env[envPasscode] != "pass word" || env[envOpenAIKey] != "sk-1" {
		t.Errorf("env = %v", env)
	}
	if _, ok := env[envAnthropicKey]; ok {
		t.Error("anthropic key written without the anthropic provider")
	}
}

func TestConfigCheckCmd(t *testing.T) {
	setSecrets(t)

	raw, err := renderStarterConfig(defaultAnswers())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "chatgate.yaml")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "config", "check", path)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.Contains(out, "Configuration OK") || !strings.Contains(out, "provider.openai") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigCheckCmd_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatgate.yaml")
	if err := os.WriteFile(path, []byte("version: \"2\"\nmodules: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "config", "check", path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestConfigInitCmd_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatgate.yaml")
	if err := os.WriteFile(path, []byte("existing"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "config", "init", path)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("err = %v, want already exists", err)
	}
}

const historySnapshot = `{"version":1,"conversations":[` +
	`{"id":"chat_2","mode":"deep","timestamp":"2026-01-02T11:00:00Z","preview":"second question",` +
	`"messages":[{"role":"developer","content":"p"},{"role":"user","content":"second question"},{"role":"assistant","content":"answer two"}]},` +
	`{"id":"chat_1","mode":"fast","timestamp":"2026-01-02T10:00:00Z","preview":"first question",` +
	`"messages":[{"role":"developer","content":"p"},{"role":"user","content":"first question"},{"role":"assistant","content":"answer one"}]}]}`

// writeHistoryConfig writes a configuration using the file history module
// backed by a snapshot in a temp dir.
func writeHistoryConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "chat_history.json")
	if err := os.WriteFile(snapshot, []byte(historySnapshot), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := "version: \"1\"\nmodules:\n" +
		"  provider.openai:\n    api_key: sk-offline\n" +
		"  history.file:\n    path: " + snapshot + "\n"
	path := filepath.Join(dir, "chatgate.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHistoryListCmd(t *testing.T) {
	cfgPath := writeHistoryConfig(t)

	out, err := execute(t, "history", "list", "-c", cfgPath, "--data-dir", t.TempDir())
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	second := strings.Index(out, "second question")
	first := strings.Index(out, "first question")
	if second < 0 || first < 0 || second > first {
		t.Errorf("expected newest first, got:\n%s", out)
	}
	if !strings.Contains(out, "deep") {
		t.Errorf("mode column missing:\n%s", out)
	}
}

func TestHistoryExportCmd(t *testing.T) {
	cfgPath := writeHistoryConfig(t)
	pdfPath := filepath.Join(t.TempDir(), "out.pdf")

	if _, err := execute(t, "history", "export", "1", "-c", cfgPath, "--data-dir", t.TempDir(), "-o", pdfPath); err != nil {
		t.Fatalf("history export: %v", err)
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("output is not a PDF: %q", data[:min(len(data), 16)])
	}
}

func TestHistoryExportCmd_BadIndex(t *testing.T) {
	cfgPath := writeHistoryConfig(t)

	tests := []string{"9", "abc"}
	for _, arg := range tests {
		if _, err := execute(t, "history", "export", arg, "-c", cfgPath, "--data-dir", t.TempDir(), "-o", "-"); err == nil {
			t.Errorf("export %s: expected error", arg)
		}
	}
}

func TestPrintHistory_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := printHistory(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No saved conversations") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestServiceConfig_AbsolutePath(t *testing.T) {
	t.Parallel()

	cfgPath := writeHistoryConfig(t)
	svc, err := serviceConfig(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	last := svc.Arguments[len(svc.Arguments)-1]
	if !filepath.IsAbs(last) {
		t.Errorf("config argument %q is not absolute", last)
	}
	if svc.Arguments[0] != "service" || svc.Arguments[1] != "run" {
		t.Errorf("arguments = %v", svc.Arguments)
	}
}
