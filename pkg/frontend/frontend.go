// Package frontend produces the candidate JSON that refinement starts from.
// Three extractors are available: few_shot sends example pairs ahead of the
// table, zero_shot builds each ligand record over several turns, and
// fine_tuning sends the table to a fine-tuned model.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/ligandx/pkg/audit"
	"github.com/papercomputeco/ligandx/pkg/coerce"
	"github.com/papercomputeco/ligandx/pkg/conversation"
	"github.com/papercomputeco/ligandx/pkg/ligand"
	"github.com/papercomputeco/ligandx/pkg/llm"
	"github.com/papercomputeco/ligandx/pkg/logger"
	"github.com/papercomputeco/ligandx/pkg/prompter"
	"github.com/papercomputeco/ligandx/pkg/sink"
)

// Kind names an extractor.
type Kind string

const (
	FewShot    Kind = "few_shot"
	ZeroShot   Kind = "zero_shot"
	FineTuning Kind = "fine_tuning"
)

// ParseKind validates an extractor name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.TrimSpace(s)); k {
	case FewShot, ZeroShot, FineTuning:
		return k, nil
	default:
		return "", fmt.Errorf("unknown extractor %q (expected few_shot, zero_shot or fine_tuning)", s)
	}
}

// Example is one input/output pair shown to the few_shot extractor.
type Example struct {
	Input  string
	Output string
}

// Config configures an Extractor.
type Config struct {
	Kind Kind

	// Prompter sends the questions. For fine_tuning it must target the
	// fine-tuned model.
	Prompter *prompter.Prompter

	// Examples are the few_shot pairs, in order.
	Examples []Example

	Logger *slog.Logger
}

// Extractor turns a table representation into candidate JSON.
type Extractor struct {
	config *Config
	logger *slog.Logger
}

// New validates c.
func New(c *Config) (*Extractor, error) {
	if c.Prompter == nil {
		return nil, errors.New("frontend: prompter is required")
	}
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return nil, fmt.Errorf("frontend: %w", err)
	}
	return &Extractor{config: c, logger: logger.OrNop(c.Logger)}, nil
}

// Extraction is the output for one table.
type Extraction struct {
	Key string

	// Raw is the final answer text.
	Raw string

	// Document is the decoded candidate; nil when Parsed is false.
	Document any
	Parsed   bool

	Log *audit.Log
}

// Extract runs the configured extractor over one representation.
func (e *Extractor) Extract(ctx context.Context, key, representation string) (*Extraction, error) {
	ex := &Extraction{Key: key, Log: audit.New()}
	p := e.config.Prompter.With(ex.Log)

	var err error
	switch e.config.Kind {
	case FewShot:
		err = e.fewShot(ctx, p, ex, representation)
	case ZeroShot:
		err = e.zeroShot(ctx, p, ex, representation)
	case FineTuning:
		err = e.fineTuning(ctx, p, ex, representation)
	}
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", key, err)
	}

	e.logger.Debug("table extracted", "document", key, "extractor", e.config.Kind, "parsed", ex.Parsed)
	return ex, nil
}

func (e *Extractor) fewShot(ctx context.Context, p *prompter.Prompter, ex *Extraction, representation string) error {
	seed := make([]llm.Message, 0, 2*len(e.config.Examples))
	for _, pair := range e.config.Examples {
		seed = append(seed,
			llm.NewTextMessage(llm.RoleUser, pair.Input),
			llm.NewTextMessage(llm.RoleAssistant, pair.Output),
		)
	}

	conv, err := conversation.New(fewShotSystem(), seed...)
	if err != nil {
		return err
	}
	if err := conv.Append(llm.RoleUser, representation); err != nil {
		return err
	}

	raw, err := p.Ask(ctx, conv)
	if err != nil {
		return err
	}
	ex.Log.Record(representation, raw)

	ex.Raw = coerce.StripFences(raw)
	if v, err := coerce.ToDict(ex.Raw); err == nil {
		ex.Document, ex.Parsed = v, true
	}
	return nil
}

func (e *Extractor) fineTuning(ctx context.Context, p *prompter.Prompter, ex *Extraction, representation string) error {
	conv, err := conversation.New(fineTuningSystem())
	if err != nil {
		return err
	}
	if err := conv.Append(llm.RoleUser, representation); err != nil {
		return err
	}

	raw, err := p.Ask(ctx, conv)
	if err != nil {
		return err
	}
	ex.Log.Record(representation, raw)

	ex.Raw = raw
	if v, err := coerce.ParseLiteral(coerce.StripFences(raw)); err == nil {
		ex.Document, ex.Parsed = v, true
	}
	return nil
}

// zeroShot discovers the ligands, then builds each record in a branch that
// starts from the discovery exchange.
func (e *Extractor) zeroShot(ctx context.Context, p *prompter.Prompter, ex *Extraction, representation string) error {
	base, err := conversation.New(zeroShotInstruction() + representation)
	if err != nil {
		return err
	}
	if err := base.Append(llm.RoleUser, zeroShotLigands); err != nil {
		return err
	}

	names, raw, err := p.AskShape(ctx, base, coerce.List)
	if err != nil {
		return err
	}
	ex.Log.Record(zeroShotLigands, raw)

	var records []ligand.Record
	for _, n := range names {
		name := fmt.Sprint(n)
		conv, err := base.Branch("", base.Messages()[1:]...)
		if err != nil {
			return err
		}

		var last string
		for _, q := range []string{
			fmt.Sprintf(zeroShotTemplate, "'''"+name+"'''"),
			zeroShotProperty,
			zeroShotTitleCaption,
			zeroShotDelete,
		} {
			if err := conv.Append(llm.RoleUser, q); err != nil {
				return err
			}
			if last, err = p.Ask(ctx, conv); err != nil {
				return err
			}
			ex.Log.Record(q, last)
		}

		fragment, err := coerce.ToDict(last)
		if err != nil {
			e.logger.Warn("dropping ligand with undecodable record", "document", ex.Key, "ligand", name, "error", err)
			continue
		}
		records = append(records, ligand.RecordFromFragment(fragment, name))
	}

	result := ligand.Reconcile(records, nil)
	if result.Kind() == ligand.Empty {
		ex.Raw = raw
		return nil
	}
	encoded, err := sink.EncodeDocument(result.Value())
	if err != nil {
		return err
	}
	ex.Document, ex.Parsed, ex.Raw = result.Value(), true, string(encoded)
	return nil
}

// Save writes <key>.json when the extraction parsed and <key>.txt with the
// raw answer otherwise. It returns the written path.
func (ex *Extraction) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}

	path := filepath.Join(dir, ex.Key+".txt")
	data := []byte(ex.Raw)
	if ex.Parsed {
		path = filepath.Join(dir, ex.Key+".json")
		var err error
		if data, err = sink.EncodeDocument(ex.Document); err != nil {
			return "", err
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
