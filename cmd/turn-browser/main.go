package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/ads-bturns/internal/db"
	"github.com/unklstewy/ads-bturns/pkg/config"
	"github.com/unklstewy/ads-bturns/pkg/coordinates"
	"github.com/unklstewy/ads-bturns/pkg/ledger"
	"github.com/unklstewy/ads-bturns/pkg/turn"
)

// turn-browser is a table browser over the turns ledger.
func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to .env file")
	source := flag.String("source", "csv", "Turns ledger to browse: csv or db")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	events, err := loadTurns(cfg, *source)
	if err != nil {
		log.Fatalf("Failed to load turns: %v", err)
	}

	center := coordinates.Geographic{Latitude: cfg.ADSB.Location.Latitude, Longitude: cfg.ADSB.Location.Longitude}
	b := newBrowser(events, center)
	if err := b.app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadTurns(cfg *config.Config, source string) ([]turn.Event, error) {
	switch source {
	case "csv":
		f, err := os.Open(cfg.Ledger.TurnsCSV)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", cfg.Ledger.TurnsCSV, err)
		}
		defer f.Close()

		events, skipped, err := ledger.ReadCSV(f)
		if skipped > 0 {
			log.Printf("⚠️  Skipped %d unreadable rows", skipped)
		}
		return events, err

	case "db":
		database, err := db.Connect(cfg.Database)
		if err != nil {
			return nil, err
		}
		defer database.Close()
		return db.NewTurnRepository(database).All(context.Background())

	default:
		return nil, fmt.Errorf("unknown source %q (want csv or db)", source)
	}
}

type browser struct {
	app     *tview.Application
	table   *tview.Table
	details *tview.TextView
	events  []turn.Event
	center  coordinates.Geographic
}

var columns = []string{"Time (UTC)", "Hex", "Callsign", "Reg", "Lat", "Lon", "ΔHdg", "Method"}

func newBrowser(events []turn.Event, center coordinates.Geographic) *browser {
	b := &browser{
		app:    tview.NewApplication(),
		events: events,
		center: center,
	}

	b.table = tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	b.table.SetBorder(true).SetTitle(fmt.Sprintf(" Turns (%d) ", len(events)))

	for c, name := range columns {
		b.table.SetCell(0, c, tview.NewTableCell(name).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}
	for i, ev := range events {
		row := i + 1
		cells := []string{
			ev.Time.Format("2006-01-02 15:04:05"),
			ev.TrackID,
			ev.Callsign,
			ev.Registration,
			fmt.Sprintf("%.5f", ev.Latitude),
			fmt.Sprintf("%.5f", ev.Longitude),
			fmt.Sprintf("%.1f", ev.HeadingChange),
			string(ev.Method),
		}
		color := tcell.ColorWhite
		if ev.Method == turn.MethodMidpoint {
			color = tcell.ColorDarkCyan
		}
		for c, text := range cells {
			b.table.SetCell(row, c, tview.NewTableCell(text).SetTextColor(color))
		}
	}

	b.details = tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	b.details.SetBorder(true).SetTitle(" Details ")

	b.table.SetSelectionChangedFunc(func(row, _ int) {
		b.showDetails(row - 1)
	})

	help := tview.NewTextView().
		SetText("↑/↓ select • q quit")

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(b.table, 0, 3, true).
		AddItem(b.details, 7, 0, false).
		AddItem(help, 1, 0, false)

	b.app.SetRoot(layout, true).SetInputCapture(b.handleKeyboard)

	if len(events) > 0 {
		b.table.Select(1, 0)
		b.showDetails(0)
	}
	return b
}

func (b *browser) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyEscape || event.Rune() == 'q' {
		b.app.Stop()
		return nil
	}
	return event
}

func (b *browser) showDetails(i int) {
	if i < 0 || i >= len(b.events) {
		b.details.SetText("")
		return
	}
	b.details.SetText(describe(b.events[i], b.center))
}

func describe(ev turn.Event, center coordinates.Geographic) string {
	pos := coordinates.Geographic{Latitude: ev.Latitude, Longitude: ev.Longitude}

	var s strings.Builder
	fmt.Fprintf(&s, "[yellow]%s[-] %s (%s) at %s UTC\n", ev.TrackID, ev.Callsign, ev.Registration,
		ev.Time.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&s, "Turn of %.1f° located by %s at %.5f, %.5f\n", ev.HeadingChange, ev.Method, ev.Latitude, ev.Longitude)
	fmt.Fprintf(&s, "%.1f NM from the monitored centre, bearing %.0f°\n",
		coordinates.DistanceNauticalMiles(center, pos), coordinates.Bearing(center, pos))
	fmt.Fprintf(&s, "https://www.openstreetmap.org/?mlat=%.5f&mlon=%.5f#map=12/%.5f/%.5f",
		ev.Latitude, ev.Longitude, ev.Latitude, ev.Longitude)
	return s.String()
}
