package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/ads-bturns/internal/db"
	"github.com/unklstewy/ads-bturns/pkg/config"
	"github.com/unklstewy/ads-bturns/pkg/track"
	"github.com/unklstewy/ads-bturns/pkg/turn"
)

const refreshInterval = 2 * time.Second

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#3C3C3C"))
	staleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB000"))
	turnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type snapshot struct {
	tracks []track.Summary
	turns  []turn.Event
	stats  map[string]int64
	at     time.Time
}

type snapshotMsg struct {
	snap snapshot
	err  error
}

type tickMsg time.Time

type model struct {
	records   *db.RecordRepository
	turns     *db.TurnRepository
	database  *db.DB
	retention time.Duration
	maxRows   int

	snap snapshot
	err  error
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) load() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var s snapshot
		var err error
		if s.tracks, err = m.records.ActiveSummaries(ctx); err != nil {
			return snapshotMsg{err: err}
		}
		if s.turns, err = m.turns.Recent(ctx, m.maxRows); err != nil {
			return snapshotMsg{err: err}
		}
		if s.stats, err = m.database.Stats(ctx); err != nil {
			return snapshotMsg{err: err}
		}
		s.at = time.Now().UTC()
		return snapshotMsg{snap: s}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.load(), tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.load()
		}
	case tickMsg:
		return m, tea.Batch(m.load(), tick())
	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ADS-B Turn Monitor"))
	if !m.snap.at.IsZero() {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  updated %s UTC", m.snap.at.Format("15:04:05"))))
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d reports | %d tracks | %d turns recorded",
		m.snap.stats["position_reports"], m.snap.stats["active_tracks"], m.snap.stats["turn_events"])))
	b.WriteString("\n\n")

	b.WriteString(panelStyle.Render(m.tracksView()))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(m.turnsView()))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errStyle.Render("✗ " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("r refresh • q quit"))
	return b.String()
}

func (m model) tracksView() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-8s %-9s %7s %9s %9s", "HEX", "CALLSIGN", "REPORTS", "AGE", "ANALYSE")))
	b.WriteString("\n")

	now := m.snap.at
	rows := m.snap.tracks
	if len(rows) > m.maxRows {
		rows = rows[:m.maxRows]
	}
	for _, t := range rows {
		age := now.Sub(t.Oldest).Truncate(time.Second)
		left := (m.retention - age).Truncate(time.Second)
		line := fmt.Sprintf("%-8s %-9s %7d %9s %9s", t.ID, t.Callsign, t.Reports, age, left)
		if left <= 0 {
			line = staleStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(m.snap.tracks) == 0 {
		b.WriteString(dimStyle.Render("no tracks accumulating"))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m model) turnsView() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-19s %-8s %-9s %10s %10s %7s %-12s", "TIME", "HEX", "CALLSIGN", "LAT", "LON", "ΔHDG", "METHOD")))
	b.WriteString("\n")

	for _, ev := range m.snap.turns {
		b.WriteString(turnStyle.Render(fmt.Sprintf("%-19s %-8s %-9s %10.5f %10.5f %7.1f %-12s",
			ev.Time.Format("2006-01-02 15:04:05"), ev.TrackID, ev.Callsign,
			ev.Latitude, ev.Longitude, ev.HeadingChange, ev.Method)))
		b.WriteString("\n")
	}
	if len(m.snap.turns) == 0 {
		b.WriteString(dimStyle.Render("no turns recorded yet"))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// turn-monitor shows the tracks the detector is accumulating and the latest
// turns, read from the SQL ledgers the detector writes.
func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to .env file")
	rows := flag.Int("rows", 15, "Rows per panel")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.InitSchema(context.Background()); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	m := model{
		records:   db.NewRecordRepository(database),
		turns:     db.NewTurnRepository(database),
		database:  database,
		retention: cfg.Detection.Retention(),
		maxRows:   *rows,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
