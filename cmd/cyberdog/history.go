package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/cyberdog/pkg/journal"
)

type HistoryCommand struct {
	Limit int    `short:"n" long:"limit" default:"20" description:"Number of actions to show"`
	Path  string `long:"journal" description:"Journal database (overrides journal_path)"`
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

var statusStyles = map[string]lipgloss.Style{
	journal.StatusFinished: successStyle.Padding(0, 1),
	journal.StatusFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1),
	journal.StatusCanceled: lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1),
}

func (c *HistoryCommand) Execute(args []string) error {
	path := c.Path
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.JournalPath
	}
	if path == "" {
		return fmt.Errorf("no journal configured; set journal_path or pass --journal")
	}

	ctx := context.Background()
	j, err := journal.Open(ctx, path, nil)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(ctx, c.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println(dimStyle.Render("No actions recorded yet."))
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			formatTime(e.QueuedAt),
			e.Action,
			fmt.Sprintf("%d", e.Steps),
			fmt.Sprintf("%d", e.Speed),
			e.Status,
			formatDuration(e.Duration()),
			e.Error,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Queued", "Action", "Steps", "Speed", "Status", "Took", "Error").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 4 && row >= 0 && row < len(entries) {
				if s, ok := statusStyles[entries[row].Status]; ok {
					return s
				}
			}
			return cellStyle
		})

	fmt.Println(t.Render())
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(10 * time.Millisecond).String()
}
