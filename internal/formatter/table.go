package formatter

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/desertthunder/reel/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// RenderCollection renders entries as a table. Added times are relative to now.
func RenderCollection(entries []models.CollectionEntry, ratings map[models.Key]int, now time.Time) string {
	headers := []string{"#", "Key", "Title", "Year", "Kind", "Rating", "Added"}
	rows := make([][]string, 0, len(entries))
	for i, entry := range entries {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(entry.Key),
			entry.Item.DisplayTitle(),
			entry.Item.Year(),
			string(entry.Item.Kind),
			ratingCell(ratings, entry.Key),
			addedCell(entry.AddedAt, now),
		})
	}
	return renderTable(headers, rows, []int{0})
}

// Marker decorates a catalog row, e.g. with collection membership.
type Marker func(item models.CatalogItem) string

// RenderCatalog renders a listing. marks may be nil.
func RenderCatalog(items []models.CatalogItem, ratings map[models.Key]int, marks Marker) string {
	headers := []string{"#", "ID", "Title", "Year", "Kind", "Score", "Rating", ""}
	rows := make([][]string, 0, len(items))
	for i, item := range items {
		key, _ := models.Resolve(item)
		mark := ""
		if marks != nil {
			mark = marks(item)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			item.PrimaryID,
			item.DisplayTitle(),
			item.Year(),
			string(item.Kind),
			fmt.Sprintf("%.1f", item.VoteAverage),
			ratingCell(ratings, key),
			mark,
		})
	}
	return renderTable(headers, rows, []int{0, 5})
}

func ratingCell(ratings map[models.Key]int, key models.Key) string {
	v, ok := ratings[key]
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%s %d", models.Stars(v), v)
}

func addedCell(addedAt, now time.Time) string {
	if addedAt.IsZero() {
		return "-"
	}
	return humanize.RelTime(addedAt, now, "ago", "from now")
}

func renderTable(headers []string, rows [][]string, rightAligned []int) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		for _, c := range rightAligned {
			if c == i {
				align = text.AlignRight
			}
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
