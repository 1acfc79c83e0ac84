package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/depot/mirror"
	"github.com/justapithecus/depot/types"
)

// PoolView is the payload for the inspect_pool view. It joins a pool's
// configuration with its runtime selector state.
type PoolView struct {
	Pool  *mirror.Pool      `json:"pool"`
	Stats *mirror.PoolStats `json:"stats,omitempty"`
}

// InspectModel is a Bubble Tea model for inspect views.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "inspect_entry":
		content = m.renderInspectEntry()
	case "inspect_pool":
		content = m.renderInspectPool()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectEntry() string {
	data, ok := m.data.(*types.CacheEntry)
	if !ok {
		return "Invalid data type for inspect_entry"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Cache Entry"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Reference", data.Reference.String()},
		{"Ecosystem", data.Reference.Ecosystem},
		{"Digest", data.Digest.String()},
		{"Size", formatBytes(data.SizeBytes)},
		{"Source Tier", string(data.SourceTier)},
		{"Created At", data.CreatedAt.Format("2006-01-02 15:04:05")},
		{"Last Accessed", data.LastAccessedAt.Format("2006-01-02 15:04:05")},
	}

	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		value := row[1]
		if row[0] == "Source Tier" {
			value = TierStyle(value).Render(value)
		} else {
			value = ValueStyle.Render(value)
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}

	return BoxStyle.Render(b.String())
}

func (m InspectModel) renderInspectPool() string {
	data, ok := m.data.(*PoolView)
	if !ok {
		return "Invalid data type for inspect_pool"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Mirror Pool"))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Name:"),
		ValueStyle.Render(data.Pool.Name)))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Strategy:"),
		ValueStyle.Render(string(data.Pool.Strategy))))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Endpoints:"),
		ValueStyle.Render(fmt.Sprintf("%d", len(data.Pool.Endpoints)))))

	if data.Pool.Sticky != nil {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Sticky Config"))
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("  Scope:"),
			ValueStyle.Render(string(data.Pool.Sticky.Scope))))
		if data.Pool.Sticky.TTL > 0 {
			b.WriteString(fmt.Sprintf("%s %s\n",
				LabelStyle.Render("  TTL:"),
				ValueStyle.Render(data.Pool.Sticky.TTL.String())))
		}
	}

	if data.Stats != nil {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Runtime State"))
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("  RR Index:"),
			ValueStyle.Render(fmt.Sprintf("%d", data.Stats.RoundRobinIndex))))
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("  Sticky:"),
			ValueStyle.Render(fmt.Sprintf("%d entries", data.Stats.StickyEntries))))
	}

	return BoxStyle.Render(b.String())
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
