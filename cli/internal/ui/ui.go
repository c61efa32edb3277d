package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

var (
	// Colors
	PrimaryColor   = lipgloss.Color("#00D9FF")
	SuccessColor   = lipgloss.Color("#00FF88")
	WarningColor   = lipgloss.Color("#FFB800")
	ErrorColor     = lipgloss.Color("#FF4444")
	SecondaryColor = lipgloss.Color("#6C757D")

	// Styles
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	SecondaryStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)

	nullColor = color.New(color.FgHiBlack, color.Italic)
)

// PrintSection prints a section header
func PrintSection(w io.Writer, title string) {
	section := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(SecondaryColor).
		Render(TitleStyle.Render(title))

	fmt.Fprintln(w, section)
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// PrintError prints an error message
func PrintError(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, WarningStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// PrintTable prints a table using pterm
func PrintTable(w io.Writer, headers []string, rows [][]string) error {
	data := pterm.TableData{headers}
	data = append(data, rows...)
	out, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, out)
	return nil
}

// PrintRows prints query rows as a table, columns in the given order.
func PrintRows(w io.Writer, columns []string, rows []map[string]interface{}) error {
	if len(columns) == 0 && len(rows) > 0 {
		for c := range rows[0] {
			columns = append(columns, c)
		}
		sort.Strings(columns)
	}

	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(columns))
		for j, c := range columns {
			cells[i][j] = FormatValue(row[c])
		}
	}
	if err := PrintTable(w, columns, cells); err != nil {
		return err
	}
	fmt.Fprintln(w, SecondaryStyle.Render(fmt.Sprintf("(%d %s)", len(rows), plural(len(rows), "row"))))
	return nil
}

// FormatValue renders a column value for display. NULL is dimmed.
func FormatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return nullColor.Sprint("NULL")
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case string:
		return strings.ReplaceAll(t, "\n", `\n`)
	default:
		return fmt.Sprint(t)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
