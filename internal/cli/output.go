package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output — вывод CLI: данные в w (таблица или JSON), сообщения в errW.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output поверх stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        os.Stdout,
		errW:     os.Stderr,
	}
}

func (o *Output) tabwriter() *tabwriter.Writer {
	return tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
}

// Print выводит таблицу; в JSON режиме — jsonData.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// PrintFields выводит пары "ключ: значение"; в JSON режиме — jsonData.
func (o *Output) PrintFields(fields [][2]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}

	tw := o.tabwriter()
	defer tw.Flush()
	for _, f := range fields {
		fmt.Fprintf(tw, "%s:\t%s\n", f[0], f[1])
	}
}

// Table выводит заголовок, строку-разделитель и строки.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := o.tabwriter()
	defer tw.Flush()

	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}

	for _, row := range append([][]string{headers, underline}, rows...) {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
}

// JSON выводит v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Successf выводит сообщение в errW.
func (o *Output) Successf(format string, args ...any) {
	fmt.Fprintf(o.errW, format+"\n", args...)
}
