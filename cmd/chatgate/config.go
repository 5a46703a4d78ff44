package main

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"text/template"

	"github.com/charmbracelet/huh"
	"github.com/flemzord/chatgate/internal/config"
	"github.com/flemzord/chatgate/internal/session"
	"github.com/flemzord/chatgate/pkg/app"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(), configInitCmd())
	return cmd
}

func configCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := app.Describe(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create a starter configuration interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FileName
			if len(args) == 1 {
				path = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			answers := defaultAnswers()
			if err := starterForm(&answers).Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Fprintln(cmd.ErrOrStderr(), "Aborted.")
					return nil
				}
				return err
			}
			return writeStarter(cmd, path, answers)
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing configuration file")
	return cmd
}

// Provider choices offered by config init.
const (
	providerOpenAI    = "openai"
	providerAnthropic = "anthropic"
)

// Environment variables the starter configuration references.
const (
	envPasscode     = "CHATGATE_PASSCODE"
	envOpenAIKey    = "OPENAI_API_KEY"
	envAnthropicKey = "ANTHROPIC_API_KEY"
)

// starterAnswers is what config init asks for.
type starterAnswers struct {
	Providers    []string
	Bind         string
	History      string // history module id
	Passcode     string
	OpenAIKey    string
	AnthropicKey string
	WriteEnv     bool
}

func defaultAnswers() starterAnswers {
	return starterAnswers{
		Providers: []string{providerOpenAI},
		Bind:      "127.0.0.1:8080",
		History:   "history.file",
		WriteEnv:  true,
	}
}

func (a starterAnswers) uses(p string) bool {
	return slices.Contains(a.Providers, p)
}

func starterForm(a *starterAnswers) *huh.Form {
	required := func(what string) func(string) error {
		return func(s string) error {
			if s == "" {
				return fmt.Errorf("%s is required", what)
			}
			return nil
		}
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Which providers should answer?").
				Options(
					huh.NewOption("OpenAI", providerOpenAI),
					huh.NewOption("Anthropic", providerAnthropic),
				).
				Value(&a.Providers).
				Validate(func(v []string) error {
					if len(v) == 0 {
						return errors.New("pick at least one provider")
					}
					return nil
				}),
			huh.NewInput().
				Title("Listen address").
				Value(&a.Bind).
				Validate(func(s string) error {
					_, _, err := net.SplitHostPort(s)
					return err
				}),
			huh.NewSelect[string]().
				Title("Where should chat history live?").
				Options(
					huh.NewOption("JSON file", "history.file"),
					huh.NewOption("SQLite database", "history.sqlite"),
				).
				Value(&a.History),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Access passcode").
				EchoMode(huh.EchoModePassword).
				Value(&a.Passcode).
				Validate(required("passcode")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI API key").
				EchoMode(huh.EchoModePassword).
				Value(&a.OpenAIKey),
		).WithHideFunc(func() bool { return !a.uses(providerOpenAI) }),
		huh.NewGroup(
			huh.NewInput().
				Title("Anthropic API key").
				EchoMode(huh.EchoModePassword).
				Value(&a.AnthropicKey),
		).WithHideFunc(func() bool { return !a.uses(providerAnthropic) }),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Store the secrets in a .env file next to the config?").
				Value(&a.WriteEnv),
		),
	)
}

func writeStarter(cmd *cobra.Command, path string, a starterAnswers) error {
	raw, err := renderStarterConfig(a)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s\n", path)

	if !a.WriteEnv {
		fmt.Fprintf(out, "Export %s before running chatgate start.\n", envPasscode)
		return nil
	}
	env, err := renderEnvFile(a)
	if err != nil {
		return err
	}
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(envPath, env, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", envPath)
	return nil
}

// starterModes returns the mode table written into a new configuration.
func starterModes(a starterAnswers) ([]session.Mode, string) {
	var modes []session.Mode
	def := ""
	if a.uses(providerOpenAI) {
		for _, m := range session.DefaultModes().List() {
			m.Provider = "provider.openai"
			modes = append(modes, m)
		}
		def = session.DefaultModes().Default().ID
	}
	if a.uses(providerAnthropic) {
		modes = append(modes, session.Mode{
			ID:          "claude",
			Label:       "Claude",
			Model:       "claude-sonnet-4-5",
			Provider:    "provider.anthropic",
			Temperature: 1.0,
			Description: "Anthropic Claude for long-form writing",
		})
		if def == "" {
			def = "claude"
		}
	}
	return modes, def
}

var starterTemplate = template.Must(template.New("chatgate.yaml").
	Funcs(template.FuncMap{"quote": strconv.Quote}).
	Parse(`# chatgate configuration, generated by "chatgate config init".
version: "1"

modules:
  gateway.http:
    bind: {{ quote .Bind }}
    passcode: ${` + envPasscode + `}
{{- if .OpenAI }}
  provider.openai:
    api_key: ${` + envOpenAIKey + `}
{{- end }}
{{- if .Anthropic }}
  provider.anthropic:
    api_key: ${` + envAnthropicKey + `}
{{- end }}
  {{ .History }}: {}

chat:
  default_mode: {{ quote .DefaultMode }}
  modes:
{{- range .Modes }}
    - id: {{ quote .ID }}
      label: {{ quote .Label }}
      provider: {{ quote .Provider }}
      model: {{ quote .Model }}
      temperature: {{ .Temperature }}
      description: {{ quote .Description }}
{{- end }}

logging:
  level: info
  format: text

limits:
  messages_per_min: 20
  max_sessions: 100
`))

// renderStarterConfig produces the YAML written by config init. Secrets
// are referenced through environment variables, never inlined.
func renderStarterConfig(a starterAnswers) ([]byte, error) {
	if len(a.Providers) == 0 {
		return nil, errors.New("no provider selected")
	}
	modes, def := starterModes(a)
	var buf bytes.Buffer
	err := starterTemplate.Execute(&buf, map[string]any{
		"Bind":        a.Bind,
		"OpenAI":      a.uses(providerOpenAI),
		"Anthropic":   a.uses(providerAnthropic),
		"History":     a.History,
		"DefaultMode": def,
		"Modes":       modes,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderEnvFile produces the .env holding the secrets the starter
// configuration references.
func renderEnvFile(a starterAnswers) ([]byte, error) {
	env := map[string]string{envPasscode: a.Passcode}
	if a.uses(providerOpenAI) {
		env[envOpenAIKey] = a.OpenAIKey
	}
	if a.uses(providerAnthropic) {
		env[envAnthropicKey] = a.AnthropicKey
	}
	s, err := godotenv.Marshal(env)
	if err != nil {
		return nil, err
	}
	return []byte(s + "\n"), nil
}
