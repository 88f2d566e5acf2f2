package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable draws rows under headers in the rounded style. Short rows are
// padded with empty cells.
func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(tableRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(tableRow(row, len(headers)))
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func tableRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = ""
		}
	}
	return row
}
