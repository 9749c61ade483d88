package main

import (
	"fmt"
	"strings"
)

type TableColumn struct {
	Header    string
	Width     int
	Alignment string // "left" or "right"
}

type Table struct {
	columns []TableColumn
	title   string
}

func NewTable(title string) *Table {
	return &Table{title: title}
}

func (t *Table) AddColumn(header string, width int, alignment string) {
	t.columns = append(t.columns, TableColumn{Header: header, Width: width, Alignment: alignment})
}

func (t *Table) PrintHeader() {
	if t.title != "" {
		fmt.Printf("%s:\n", t.title)
	}

	t.printBorder("┌", "┬", "┐")

	fmt.Print("│")
	for i, col := range t.columns {
		if i > 0 {
			fmt.Print("│")
		}
		fmt.Printf(" %-*s", col.Width-1, col.Header)
	}
	fmt.Println("│")

	t.printBorder("├", "┼", "┤")
}

func (t *Table) PrintRow(data []interface{}) {
	if len(data) != len(t.columns) {
		return
	}

	fmt.Print("│")
	for i, col := range t.columns {
		if i > 0 {
			fmt.Print("│")
		}
		value := fmt.Sprintf("%v", data[i])
		if col.Alignment == "right" {
			fmt.Printf(" %*s", col.Width-1, value)
		} else {
			fmt.Printf(" %-*s", col.Width-1, value)
		}
	}
	fmt.Println("│")
}

func (t *Table) PrintEmptyRow(message string) {
	totalWidth := len(t.columns) - 1
	for _, col := range t.columns {
		totalWidth += col.Width
	}

	padding := totalWidth - len(message)
	if padding < 0 {
		padding = 0
	}
	left := padding / 2
	fmt.Printf("│%*s%s%*s│\n", left, "", message, padding-left, "")
}

func (t *Table) PrintFooter() {
	t.printBorder("└", "┴", "┘")
}

func (t *Table) printBorder(left, mid, right string) {
	fmt.Print(left)
	for i, col := range t.columns {
		if i > 0 {
			fmt.Print(mid)
		}
		fmt.Print(strings.Repeat("─", col.Width))
	}
	fmt.Println(right)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
