// Package report выгружает отчёты потоково в JSON и CSV.
package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Format задаёт формат выгрузки.
type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
)

// ParseFormat возвращает формат по строке, по умолчанию JSON.
func ParseFormat(s string) Format {
	if Format(s) == CSV {
		return CSV
	}
	return JSON
}

// ContentType возвращает MIME-тип формата.
func (f Format) ContentType() string {
	if f == CSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Writer пишет строки отчёта по одной, не накапливая их в памяти.
// Для JSON результатом будет массив объектов с ключами columns, для CSV таблица с заголовком.
type Writer struct {
	format  Format
	columns []string
	buf     *bufio.Writer
	csv     *csv.Writer
	rows    int
}

// NewWriter создаёт писателя и сразу выводит заголовок.
func NewWriter(w io.Writer, f Format, columns []string) (*Writer, error) {
	rw := &Writer{format: f, columns: columns}

	if f == CSV {
		rw.csv = csv.NewWriter(w)
		if err := rw.csv.Write(columns); err != nil {
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		return rw, nil
	}

	rw.buf = bufio.NewWriter(w)
	if _, err := rw.buf.WriteString("["); err != nil {
		return nil, fmt.Errorf("write json start: %w", err)
	}
	return rw, nil
}

// Write выводит одну строку; число значений должно совпадать с числом колонок.
func (w *Writer) Write(values ...any) error {
	if len(values) != len(w.columns) {
		return fmt.Errorf("report row has %d values, want %d", len(values), len(w.columns))
	}
	defer func() { w.rows++ }()

	if w.format == CSV {
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = csvValue(v)
		}
		return w.csv.Write(record)
	}

	if w.rows > 0 {
		if err := w.buf.WriteByte(','); err != nil {
			return err
		}
	}
	if err := w.buf.WriteByte('{'); err != nil {
		return err
	}
	for i, col := range w.columns {
		if i > 0 {
			if err := w.buf.WriteByte(','); err != nil {
				return err
			}
		}
		key, _ := json.Marshal(col)
		val, err := json.Marshal(values[i])
		if err != nil {
			return fmt.Errorf("encode %s: %w", col, err)
		}
		w.buf.Write(key)
		w.buf.WriteByte(':')
		w.buf.Write(val)
	}
	return w.buf.WriteByte('}')
}

// Rows возвращает число записанных строк.
func (w *Writer) Rows() int {
	return w.rows
}

// Close завершает документ и сбрасывает буферы.
func (w *Writer) Close() error {
	if w.format == CSV {
		w.csv.Flush()
		return w.csv.Error()
	}
	if _, err := w.buf.WriteString("]\n"); err != nil {
		return err
	}
	return w.buf.Flush()
}

func csvValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
