// Package followup refines a candidate ligand document by walking an LLM
// through a fixed series of dependent questions about the source table.
package followup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/ligandx/pkg/audit"
	"github.com/papercomputeco/ligandx/pkg/coerce"
	"github.com/papercomputeco/ligandx/pkg/conversation"
	"github.com/papercomputeco/ligandx/pkg/ligand"
	"github.com/papercomputeco/ligandx/pkg/llm"
	"github.com/papercomputeco/ligandx/pkg/logger"
	"github.com/papercomputeco/ligandx/pkg/prompter"
)

const defaultAttempts = 3

// Document is one table to refine.
type Document struct {
	// Key is the file stem shared by the representation and candidate.
	Key string

	// Representation is the table as HTML, TSV text or pre-parsed JSON text.
	Representation string

	// Candidate is the decoded candidate JSON from the extraction stage.
	Candidate any
}

// Config is the configuration of an Orchestrator.
type Config struct {
	// Prompter sends every question. Required.
	Prompter *prompter.Prompter

	// Questions is the question table. Defaults to DefaultQuestions().
	Questions *Questions

	// PerformanceAttempts caps the re-asks of the property type question
	// when its answer is not a list.
	PerformanceAttempts int

	// StructuralAttempts caps the extra asks of the final property question
	// when its answer is not a JSON object.
	StructuralAttempts int

	// RemovalAttempts caps the key removal calls of element pruning.
	RemovalAttempts int

	Logger *slog.Logger
}

// Orchestrator runs the refinement protocol. Documents are processed one at
// a time.
type Orchestrator struct {
	config    *Config
	questions *Questions
	logger    *slog.Logger
}

// New creates an Orchestrator.
func New(c *Config) (*Orchestrator, error) {
	if c.Prompter == nil {
		return nil, errors.New("followup: prompter is required")
	}
	if c.Questions == nil {
		c.Questions = DefaultQuestions()
	}
	if err := c.Questions.Validate(); err != nil {
		return nil, fmt.Errorf("followup: %w", err)
	}
	if c.PerformanceAttempts <= 0 {
		c.PerformanceAttempts = defaultAttempts
	}
	if c.StructuralAttempts <= 0 {
		c.StructuralAttempts = defaultAttempts
	}
	if c.RemovalAttempts <= 0 {
		c.RemovalAttempts = defaultAttempts
	}

	return &Orchestrator{
		config:    c,
		questions: c.Questions,
		logger:    logger.OrNop(c.Logger),
	}, nil
}

// Run refines one document. A failed ligand discovery returns an error and
// no document, and so does a document whose every discovered ligand was
// dropped (ErrNoLigandRefined). Shape failures inside one ligand drop that
// ligand and are listed in Outcome.Failures; the rest are still refined.
// Transport failures and cancellation abort the document.
func (o *Orchestrator) Run(ctx context.Context, doc Document) (*Outcome, error) {
	log := audit.New()
	title, caption := SplitTitle(doc.Representation)
	out := &Outcome{Key: doc.Key, Log: log}

	r := &run{
		o:       o,
		doc:     doc,
		title:   title,
		caption: caption,
		p:       o.config.Prompter.With(log),
		log:     log,
		out:     out,
		logger:  o.logger.With("document", doc.Key),
	}

	r.enter(StageLigandDiscovery)
	names, err := r.discoverLigands(ctx)
	if err != nil {
		return out, fmt.Errorf("ligand discovery for %s: %w", doc.Key, err)
	}
	out.Ligands = names

	var records []ligand.Record
	for _, name := range names {
		rec, err := r.refineLigand(ctx, name)
		if err == nil {
			records = append(records, rec)
			continue
		}

		var f Failure
		var sm *coerce.ShapeMismatchError
		if errors.As(err, &f) && errors.As(err, &sm) {
			out.Failures = append(out.Failures, f)
			r.logger.Warn("ligand dropped",
				"ligand", f.Ligand,
				"property", f.Property,
				"stage", f.Stage.String(),
				"error", f.Err,
			)
			continue
		}
		return out, fmt.Errorf("refining %s of %s: %w", name, doc.Key, err)
	}

	if len(names) > 0 && len(records) == 0 {
		errs := make([]error, 0, len(out.Failures))
		for _, f := range out.Failures {
			errs = append(errs, f)
		}
		return out, fmt.Errorf("%s: %w: %w", doc.Key, ErrNoLigandRefined, errors.Join(errs...))
	}

	r.enter(StageReconciliation)
	out.Result = ligand.Reconcile(records, doc.Candidate)

	r.enter(StageElementPruning)
	final, removed, err := r.pruneElements(ctx, out.Result.Value())
	if err != nil {
		return out, fmt.Errorf("element pruning for %s: %w", doc.Key, err)
	}
	out.Document = final
	out.Removed = removed

	return out, nil
}

// run is the state of one document.
type run struct {
	o       *Orchestrator
	doc     Document
	title   string
	caption string
	p       *prompter.Prompter
	log     *audit.Log
	out     *Outcome
	logger  *slog.Logger
}

func (r *run) enter(s Stage, args ...any) {
	r.logger.Debug("stage", append([]any{"stage", s.String()}, args...)...)
}

func (r *run) discoverLigands(ctx context.Context) ([]string, error) {
	q := r.o.questions.Ligand
	conv, err := conversation.New(r.o.questions.System)
	if err != nil {
		return nil, err
	}

	fromTable, _, err := r.askShape(ctx, conv, q.FromTable, r.doc.Candidate, coerce.List, placeholders{})
	if err != nil {
		return nil, err
	}
	fromCandidate, _, err := r.askShape(ctx, conv, q.FromCandidate, r.doc.Candidate, coerce.List, placeholders{})
	if err != nil {
		return nil, err
	}

	a1, a2 := toNames(fromTable), toNames(fromCandidate)
	if sameSet(a1, a2) {
		return a1, nil
	}

	reconciled, _, err := r.askShape(ctx, conv, q.Reconcile, r.doc.Candidate, coerce.List, placeholders{})
	if err != nil {
		return nil, err
	}
	return toNames(reconciled), nil
}

// discoverProperties asks for the property types of one ligand. A non-list
// answer is dropped from the conversation and the question re-sent.
func (r *run) discoverProperties(ctx context.Context, name string) ([]string, error) {
	q := r.o.questions.Performance
	conv, err := conversation.New(r.o.questions.System)
	if err != nil {
		return nil, err
	}

	text := format(q.Text, name, "", "")
	if err := conv.Append(llm.RoleUser, r.context(q.Context, r.doc.Candidate)+text); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		raw, err := r.p.Ask(ctx, conv)
		if err != nil {
			return nil, err
		}

		list, cerr := coerce.ToList(raw)
		if cerr == nil {
			r.log.Record(text, list)
			return toNames(list), nil
		}
		r.log.Record(text, coerce.ToString(raw))

		if attempt >= r.o.config.PerformanceAttempts {
			return nil, cerr
		}
		conv.PopLast()
		r.p.Observer().ObserveRetry(prompter.RetryPerformance)
		r.logger.Warn("property types not a list, asking again", "ligand", name, "attempt", attempt)
	}
}

func (r *run) refineLigand(ctx context.Context, name string) (ligand.Record, error) {
	r.enter(StagePerformanceDiscovery, "ligand", name)
	props, err := r.discoverProperties(ctx, name)
	if err != nil {
		return ligand.Record{}, Failure{Ligand: name, Stage: StagePerformanceDiscovery, Err: err}
	}
	if len(props) == 0 {
		return ligand.Record{Name: name, Properties: map[string]any{}}, nil
	}

	r.enter(StagePropertyExtraction, "ligand", name, "properties", len(props))

	// Each property refines the output of the previous one.
	current := r.doc.Candidate
	for _, prop := range props {
		next, err := r.refineProperty(ctx, name, prop, current)
		if err != nil {
			return ligand.Record{}, Failure{Ligand: name, Property: prop, Stage: StagePropertyExtraction, Err: err}
		}
		current = next
	}
	return ligand.RecordFromFragment(current, name), nil
}

// refineProperty runs the eight question protocol for one property and
// returns the refined JSON, or current when no object could be obtained.
func (r *run) refineProperty(ctx context.Context, name, prop string, current any) (any, error) {
	pq := r.o.questions.Property
	ph := placeholders{ligand: name, element: prop}

	conv, err := conversation.New(r.o.questions.System)
	if err != nil {
		return nil, err
	}

	_, extracted, err := r.askShape(ctx, conv, pq.Extract, current, coerce.String, ph)
	if err != nil {
		return nil, err
	}

	gate, _, err := r.askShape(ctx, conv, pq.UnknownGate, current, coerce.String, ph)
	if err != nil {
		return nil, err
	}
	hasUnknown := !coerce.IsNo(asString(gate))

	cleaned := extracted
	if hasUnknown {
		if _, cleaned, err = r.askShape(ctx, conv, pq.RemoveUnknown, current, coerce.Dict, ph); err != nil {
			return nil, err
		}
	} else {
		if err := r.synthetic(conv, pq.SkippedCleanup, extracted); err != nil {
			return nil, err
		}
		r.log.Skip()
	}

	tableValues, _, err := r.askShape(ctx, conv, pq.TableValues, current, coerce.List, ph)
	if err != nil {
		return nil, err
	}
	fieldValues, _, err := r.askShape(ctx, conv, pq.ValueFields, current, coerce.List, ph)
	if err != nil {
		return nil, err
	}

	missing := ligand.MissingValues(asList(fieldValues), asList(tableValues))
	if err := r.synthetic(conv, format(pq.Diff.Text, name, prop, ""), missing); err != nil {
		return nil, err
	}

	if len(missing) == 0 {
		text, answer := pq.UnchangedFromClean, cleaned
		if !hasUnknown {
			text, answer = pq.UnchangedFromFirst, extracted
		}
		if err := r.synthetic(conv, text, answer); err != nil {
			return nil, err
		}
		r.log.Skip()
	} else if _, _, err := r.askShape(ctx, conv, pq.RemoveMissing, current, coerce.Dict, ph); err != nil {
		return nil, err
	}

	return r.finalize(ctx, conv, name, prop, current)
}

// finalize asks the final question until the answer is a JSON object,
// re-supplying the JSON context on each extra attempt. When the attempts
// run out current is kept.
func (r *run) finalize(ctx context.Context, conv *conversation.Conversation, name, prop string, current any) (any, error) {
	pq := r.o.questions.Property
	text := format(pq.Final.Text, name, prop, "")
	turn := r.context(pq.Final.Context, current) + text
	if err := conv.Append(llm.RoleUser, turn); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		v, _, err := r.p.AskShape(ctx, conv, coerce.Dict)
		if err != nil {
			return nil, err
		}
		r.log.Record(text, v)

		if obj, ok := v.(map[string]any); ok {
			return obj, nil
		}

		if attempt >= r.o.config.StructuralAttempts {
			amb := &StructuralAmbiguityError{Ligand: name, Property: prop, Attempts: attempt + 1, Last: v}
			r.out.Fallbacks = append(r.out.Fallbacks, amb)
			r.logger.Warn("keeping last known-good JSON", "ligand", name, "property", prop, "error", amb)
			return current, nil
		}

		r.p.Observer().ObserveRetry(prompter.RetryStructural)
		conv.PopLast()
		conv.PopLast()
		if err := conv.Append(llm.RoleUser, r.context(ContextJSON, current)+text+pq.StructuralReminder); err != nil {
			return nil, err
		}
	}
}

// pruneElements asks the title and caption questions and removes every
// spurious key still present in doc.
func (r *run) pruneElements(ctx context.Context, doc any) (any, []string, error) {
	var spurious []string
	for _, check := range r.o.questions.Elements {
		noTitle, err := r.isNo(ctx, check.Title, doc)
		if err != nil {
			return doc, nil, err
		}
		noCaption, err := r.isNo(ctx, check.Caption, doc)
		if err != nil {
			return doc, nil, err
		}
		if noTitle && noCaption {
			spurious = append(spurious, check.Key)
		}
	}

	var removed []string
	for _, key := range spurious {
		if !ligand.HasKey(doc, key) {
			continue
		}
		next, ok, err := r.removeKey(ctx, doc, key)
		if err != nil {
			return doc, removed, err
		}
		if ok {
			doc = next
			removed = append(removed, key)
		}
	}
	return doc, removed, nil
}

func (r *run) isNo(ctx context.Context, q Question, doc any) (bool, error) {
	conv, err := conversation.New("")
	if err != nil {
		return false, err
	}
	v, _, err := r.askShape(ctx, conv, q, doc, coerce.String, placeholders{})
	if err != nil {
		return false, err
	}
	return coerce.IsNo(asString(v)), nil
}

// removeKey asks the model to drop key from doc. Every backend call counts
// against RemovalAttempts; it reports false when no JSON object came back
// within that cap.
func (r *run) removeKey(ctx context.Context, doc any, key string) (any, bool, error) {
	q := r.o.questions.RemoveKey
	p := r.p.WithCoercionRetries(0)
	conv, err := conversation.New("")
	if err != nil {
		return doc, false, err
	}
	text := format(q.Text, "", "", key)
	if err := conv.Append(llm.RoleUser, r.context(q.Context, doc)+text); err != nil {
		return doc, false, err
	}

	for attempt := 1; attempt <= r.o.config.RemovalAttempts; attempt++ {
		if attempt > 1 {
			r.p.Observer().ObserveRetry(prompter.RetryRemoval)
		}

		v, raw, err := p.AskShape(ctx, conv, coerce.Dict)
		var sm *coerce.ShapeMismatchError
		switch {
		case errors.As(err, &sm):
			r.log.Record(text, coerce.ToString(raw))
			continue
		case err != nil:
			return doc, false, err
		}

		r.log.Record(text, v)
		if obj, ok := v.(map[string]any); ok {
			return obj, true, nil
		}
		conv.PopLast()
	}

	r.logger.Warn("key removal gave no JSON object, keeping document", "key", key)
	return doc, false, nil
}

type placeholders struct {
	ligand  string
	element string
	key     string
}

// askShape appends the question with its context, asks it and records the
// coerced answer.
func (r *run) askShape(ctx context.Context, conv *conversation.Conversation, q Question, current any, shape coerce.Shape, ph placeholders) (any, string, error) {
	text := format(q.Text, ph.ligand, ph.element, ph.key)
	if err := conv.Append(llm.RoleUser, r.context(q.Context, current)+text); err != nil {
		return nil, "", err
	}

	v, raw, err := r.p.AskShape(ctx, conv, shape)
	if err != nil {
		return nil, raw, err
	}
	r.log.Record(text, v)
	return v, raw, nil
}

// synthetic records a question the protocol answers itself, both in the
// conversation and the audit log.
func (r *run) synthetic(conv *conversation.Conversation, question string, answer any) error {
	if err := conv.Exchange(question, audit.FormatAnswer(answer)); err != nil {
		return err
	}
	r.log.Record(question, answer)
	return nil
}

func (r *run) context(kind Context, current any) string {
	switch kind {
	case ContextRepresentation:
		return "<input representation>\n" + r.doc.Representation + "\n\n"
	case ContextJSON:
		return "<input json>\n" + EncodeJSON(current) + "\n\n"
	case ContextBoth:
		return "<input representation>\n" + r.doc.Representation + "\n<input json>\n" + EncodeJSON(current) + "\n\n"
	case ContextTitle:
		return "<input representation>\n" + r.title + "\n\n"
	case ContextCaption:
		return "<input representation>\n" + r.caption + "\n\n"
	default:
		return ""
	}
}

// SplitTitle splits a representation at its first </table> tag. The title
// runs up to and including the tag; the caption is the text between it and
// the next </table>, or the end.
func SplitTitle(representation string) (title, caption string) {
	const tag = "</table>"
	head, rest, found := strings.Cut(representation, tag)
	if !found {
		return head + tag, ""
	}
	caption, _, _ = strings.Cut(rest, tag)
	return head + tag, caption
}

// EncodeJSON renders v as compact JSON without HTML escaping. Strings are
// returned as they are.
func EncodeJSON(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func toNames(v any) []string {
	list, _ := v.([]any)
	seen := make(map[string]bool, len(list))
	names := make([]string, 0, len(list))
	for _, item := range list {
		name := strings.TrimSpace(fmt.Sprint(item))
		if s, ok := item.(string); ok {
			name = strings.TrimSpace(s)
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}
