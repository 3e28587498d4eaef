// Package sink persists the per-document outputs of a refinement run: the
// refined JSON, the question/answer log and the token log.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/papercomputeco/ligandx/pkg/followup"
)

// Output subdirectories (or object prefixes) of each artifact.
const (
	JSONDir  = "json"
	LogDir   = "log"
	TokenDir = "token"
)

// Artifacts are the rendered outputs of one document.
type Artifacts struct {
	Key      string
	Document []byte
	QA       []byte
	Tokens   []byte
}

// Sink stores artifacts.
type Sink interface {
	Write(ctx context.Context, a Artifacts) error
}

// Render encodes an outcome's document and logs.
func Render(out *followup.Outcome) (Artifacts, error) {
	doc, err := EncodeDocument(out.Document)
	if err != nil {
		return Artifacts{}, err
	}
	qa, err := out.Log.QACSV()
	if err != nil {
		return Artifacts{}, fmt.Errorf("rendering audit log: %w", err)
	}
	tokens, err := out.Log.TokenCSV()
	if err != nil {
		return Artifacts{}, fmt.Errorf("rendering token log: %w", err)
	}
	return Artifacts{Key: out.Key, Document: doc, QA: qa, Tokens: tokens}, nil
}

// EncodeDocument renders v as JSON indented by four spaces, without HTML
// escaping.
func EncodeDocument(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return buf.Bytes(), nil
}

// Multi writes to every sink, continuing past failures.
type Multi []Sink

func (m Multi) Write(ctx context.Context, a Artifacts) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
