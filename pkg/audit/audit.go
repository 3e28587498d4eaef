// Package audit keeps the two per-document logs written next to every
// refined document: the question/answer log and the token log.
package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/papercomputeco/ligandx/pkg/llm"
)

// SkipMarker is the answer column of a row standing in for a question that
// was not asked.
const SkipMarker = "SKIP THE NEXT QUESTIONS"

// Header is the column header of both CSV logs.
var Header = []string{"Question", "Answer"}

// Row is one question/answer line.
type Row struct {
	Question string
	Answer   string
}

// Exchange is one call to the backend: the full history sent and the raw
// answer received.
type Exchange struct {
	History []llm.Message
	Answer  string
}

// Log accumulates rows for one document. The zero value is ready to use.
type Log struct {
	rows      []Row
	exchanges []Exchange
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Record adds a question with its coerced answer.
func (l *Log) Record(question string, answer any) {
	l.rows = append(l.rows, Row{Question: question, Answer: FormatAnswer(answer)})
}

// Skip adds the skip marker row.
func (l *Log) Skip() {
	l.rows = append(l.rows, Row{Question: SkipMarker, Answer: SkipMarker})
}

// RecordExchange adds a token log entry. The history is copied.
func (l *Log) RecordExchange(history []llm.Message, answer string) {
	l.exchanges = append(l.exchanges, Exchange{History: slices.Clone(history), Answer: answer})
}

// Rows returns the question/answer rows in order.
func (l *Log) Rows() []Row {
	return slices.Clone(l.rows)
}

// Exchanges returns the token log entries in order.
func (l *Log) Exchanges() []Exchange {
	return slices.Clone(l.exchanges)
}

// WriteQA renders the question/answer log as CSV.
func (l *Log) WriteQA(w io.Writer) error {
	return writeCSV(w, l.rows)
}

// WriteTokens renders the token log as CSV: the JSON encoded history
// snapshot and the raw answer.
func (l *Log) WriteTokens(w io.Writer) error {
	rows := make([]Row, 0, len(l.exchanges))
	for _, ex := range l.exchanges {
		rows = append(rows, Row{Question: marshalCompact(ex.History), Answer: ex.Answer})
	}
	return writeCSV(w, rows)
}

// QACSV returns the question/answer log as CSV bytes.
func (l *Log) QACSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := l.WriteQA(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TokenCSV returns the token log as CSV bytes.
func (l *Log) TokenCSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := l.WriteTokens(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatAnswer renders a coerced answer for the audit log. Strings are kept
// verbatim; other values are written as compact JSON.
func FormatAnswer(v any) string {
	switch a := v.(type) {
	case nil:
		return ""
	case string:
		return a
	default:
		return marshalCompact(a)
	}
}

func marshalCompact(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func writeCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Question, r.Answer}); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
