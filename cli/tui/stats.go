package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/depot/metrics"
	"github.com/justapithecus/depot/store"
)

// CacheStatsView is the payload for the stats_cache view. The same
// struct is rendered by the json, yaml and table formats.
type CacheStatsView struct {
	Store   store.Stats      `json:"store"`
	Metrics metrics.Snapshot `json:"metrics"`
}

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_cache":
		content = m.renderStatsCache()
	case "stats_tiers":
		content = m.renderStatsTiers()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsCache() string {
	data, ok := m.data.(*CacheStatsView)
	if !ok {
		return "Invalid data type for stats_cache"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Cache Statistics"))
	b.WriteString("\n\n")

	boxes := []string{
		m.renderStatBox("Entries", int64(data.Store.Entries), highlightColor),
		m.renderStatBox("Hits", data.Metrics.Hits, successColor),
		m.renderStatBox("Misses", data.Metrics.Misses, warningColor),
		m.renderStatBox("Corrupted", data.Metrics.CorruptionEvictions, errorColor),
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	rate := data.Metrics.HitRate()
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Hit Rate:"),
		HitRateStyle(rate).Render(fmt.Sprintf("%.1f%%", rate*100))))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Stored:"),
		ValueStyle.Render(formatBytes(data.Store.TotalBytes))))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Saved:"),
		ValueStyle.Render(formatBytes(data.Metrics.BytesServedFromCache))))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Root:"),
		ValueStyle.Render(data.Metrics.CacheRoot)))

	return b.String()
}

func (m StatsModel) renderStatsTiers() string {
	data, ok := m.data.(*metrics.Snapshot)
	if !ok {
		return "Invalid data type for stats_tiers"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Tier Statistics"))
	b.WriteString("\n\n")

	names := make([]string, 0, len(data.Tiers))
	for name := range data.Tiers {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		b.WriteString(ValueStyle.Render("No tier activity recorded."))
		return b.String()
	}

	for i, name := range names {
		if i > 0 {
			b.WriteString("\n\n")
		}

		stats := data.Tiers[name]
		tierTitle := lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor).
			Render(fmt.Sprintf("Tier: %s", name))

		b.WriteString(tierTitle)
		b.WriteString("\n")

		boxes := []string{
			m.renderStatBox("Successes", stats.Successes, successColor),
			m.renderStatBox("Failures", stats.Failures, errorColor),
			m.renderStatBox("Skipped", stats.Skipped, mutedColor),
		}

		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Avg Latency:"),
			ValueStyle.Render(stats.AvgLatency().String())))
		b.WriteString(fmt.Sprintf("%s %s",
			LabelStyle.Render("Fetched:"),
			ValueStyle.Render(formatBytes(stats.BytesFetched))))
	}

	return b.String()
}

func (m StatsModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
