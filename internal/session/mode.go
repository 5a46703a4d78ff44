package session

import "fmt"

// DefaultPreamble is the developer message every conversation starts with
// unless the configuration overrides it.
const DefaultPreamble = "You are an advanced dual-purpose AI assistant.\n\n" +
	"IT MODE: Use Markdown code blocks with language tags, explain bug causes clearly, " +
	"prioritize clean and maintainable code, and provide best practices.\n\n" +
	"ACADEMIC MODE: Maintain a formal scholarly tone, focus on logical flow and coherence, " +
	"provide clear rationales for rewrites, and cite relevant academic conventions when applicable.\n\n" +
	"Always be concise, accurate, and helpful."

// DefaultProvider is the provider module used by modes that name none.
const DefaultProvider = "provider.openai"

// Mode is one entry of the mode picker: which model answers and how.
type Mode struct {
	ID          string  `yaml:"id" json:"id"`
	Label       string  `yaml:"label" json:"label"`
	Model       string  `yaml:"model" json:"model"`
	Provider    string  `yaml:"provider" json:"provider"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	Description string  `yaml:"description" json:"description"`
}

// Modes is an ordered mode table with a default entry.
type Modes struct {
	list []Mode
	def  string
}

// DefaultModes returns the built-in table: deep reasoning, balanced and
// fast, with fast as the default.
func DefaultModes() *Modes {
	m, _ := NewModes([]Mode{
		{ID: "deep", Label: "💻 Iubirelu' programelu'", Model: "gpt-5.2", Temperature: 1.0,
			Description: "Deep reasoning for complex coding & analysis"},
		{ID: "balanced", Label: "⚡ Bun la tat", Model: "gpt-5", Temperature: 1.0,
			Description: "Balanced intelligence for everyday tasks"},
		{ID: "fast", Label: "📚 Bombonica studentica", Model: "gpt-5-mini", Temperature: 1.0,
			Description: "Fast & affordable for quick corrections"},
	}, "fast")
	return m
}

// NewModes builds a table from list. An empty def selects the last entry.
func NewModes(list []Mode, def string) (*Modes, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("session: mode table is empty")
	}
	seen := make(map[string]bool, len(list))
	out := make([]Mode, 0, len(list))
	for _, m := range list {
		if m.ID == "" || m.Model == "" {
			return nil, fmt.Errorf("session: mode %q needs an id and a model", m.ID)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("session: duplicate mode %q", m.ID)
		}
		if err := checkTemperature(m.Temperature); err != nil {
			return nil, fmt.Errorf("session: mode %q: %w", m.ID, err)
		}
		seen[m.ID] = true
		if m.Provider == "" {
			m.Provider = DefaultProvider
		}
		if m.Label == "" {
			m.Label = m.ID
		}
		out = append(out, m)
	}
	if def == "" {
		def = out[len(out)-1].ID
	}
	if !seen[def] {
		return nil, fmt.Errorf("session: default mode %q: %w", def, ErrUnknownMode)
	}
	return &Modes{list: out, def: def}, nil
}

// Get returns the mode with the given id.
func (m *Modes) Get(id string) (Mode, bool) {
	for _, mode := range m.list {
		if mode.ID == id {
			return mode, true
		}
	}
	return Mode{}, false
}

// Resolve finds a mode by id, falling back to its display label. Older
// history files recorded the label.
func (m *Modes) Resolve(key string) (Mode, bool) {
	if mode, ok := m.Get(key); ok {
		return mode, true
	}
	for _, mode := range m.list {
		if mode.Label == key {
			return mode, true
		}
	}
	return Mode{}, false
}

// Default returns the default mode.
func (m *Modes) Default() Mode {
	mode, _ := m.Get(m.def)
	return mode
}

// List returns the modes in display order.
func (m *Modes) List() []Mode {
	out := make([]Mode, len(m.list))
	copy(out, m.list)
	return out
}
