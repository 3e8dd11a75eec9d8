package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
	"github.com/ersonp/tidstore/internal/domain/services"
	"github.com/ersonp/tidstore/internal/infrastructure/parsers"
)

// idAliases are the names accepted for system predicates and entity types.
var idAliases = map[string]entities.Tid{
	"type":         entities.PredicateEntityType,
	"name":         entities.PredicateEntityName,
	"description":  entities.PredicateEntityDescription,
	"created":      entities.PredicateEntityCreationTimestamp,
	"memberOf":     entities.PredicateMemberOf,
	"author":       entities.PredicateStatementAuthor,
	"timestamp":    entities.PredicateStatementTimestamp,
	"note":         entities.PredicateStatementEditorialNote,
	"lang":         entities.PredicateObjectLang,
	"sequence":     entities.PredicateObjectSequence,
	"from":         entities.PredicateObjectFrom,
	"until":        entities.PredicateObjectUntil,
	"cancelledBy":  entities.PredicateCancelledBy,
	"cancelledAt":  entities.PredicateCancellationTimestamp,
	"cancelNote":   entities.PredicateCancellationEditorialNote,
	"mergedInto":   entities.PredicateMergedInto,
	"mergedBy":     entities.PredicateMergedBy,
	"mergedAt":     entities.PredicateMergeTimestamp,
	"mergeNote":    entities.PredicateMergeEditorialNote,
	"person":       entities.TypePerson,
	"language":     entities.TypeLanguage,
	"work":         entities.TypeWork,
	"organization": entities.TypeOrganization,
	"document":     entities.TypeDocument,
}

// ParseID parses an entity id, accepting the aliases of system predicates
// and entity types as well as decimal and base-36 TIDs.
func ParseID(s string) (entities.Tid, error) {
	s = strings.TrimSpace(s)
	if t, ok := idAliases[s]; ok {
		return t, nil
	}
	t, err := entities.ParseTid(s)
	if err != nil {
		return 0, fmt.Errorf("parsing id %q: %w", s, err)
	}
	return t, nil
}

// ParseObject parses an object written as e:<id>, s:<text>, n:<number> or
// t:<RFC 3339 time>. Text without a prefix is a string.
func ParseObject(s string) (entities.Object, error) {
	prefix, rest, ok := strings.Cut(s, ":")
	if !ok || len(prefix) != 1 {
		return entities.StringObject(s), nil
	}
	switch prefix {
	case "e":
		t, err := ParseID(rest)
		if err != nil {
			return entities.Object{}, err
		}
		return entities.EntityObject(t), nil
	case "s":
		return entities.StringObject(rest), nil
	case "n":
		n, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return entities.Object{}, fmt.Errorf("parsing number %q: %w", rest, err)
		}
		return entities.NumberObject(n), nil
	case "t":
		ts, err := time.Parse(time.RFC3339Nano, rest)
		if err != nil {
			return entities.Object{}, fmt.Errorf("parsing timestamp %q: %w", rest, err)
		}
		return entities.TimestampObject(ts), nil
	default:
		return entities.StringObject(s), nil
	}
}

// FormatObject writes an object in the form ParseObject reads.
func FormatObject(o entities.Object) string {
	switch o.Kind() {
	case entities.ObjectEntity:
		t, _ := o.Entity()
		return "e:" + t.String()
	case entities.ObjectString:
		return "s:" + o.Literal()
	case entities.ObjectNumber:
		return "n:" + o.Literal()
	case entities.ObjectTimestamp:
		return "t:" + o.Literal()
	default:
		return ""
	}
}

// FormatMetadata writes metadata as the predicate=object pairs
// ParseMetadata reads.
func FormatMetadata(md entities.Metadata) []string {
	out := make([]string, len(md))
	for i, pair := range md {
		out[i] = pair.Predicate.String() + "=" + FormatObject(pair.Object)
	}
	return out
}

// ParseMetadata parses predicate=object pairs.
func ParseMetadata(pairs []string) (entities.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	md := make(entities.Metadata, 0, len(pairs))
	for _, p := range pairs {
		pred, obj, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("metadata %q: want predicate=object", p)
		}
		predicate, err := ParseID(pred)
		if err != nil {
			return nil, err
		}
		object, err := ParseObject(obj)
		if err != nil {
			return nil, err
		}
		md = append(md, entities.MetadataPair{Predicate: predicate, Object: object})
	}
	return md, nil
}

// StatementHandler handles statement operations.
type StatementHandler struct {
	store *services.StatementStore
	clock ports.Clock
}

// NewStatementHandler creates a new StatementHandler.
func NewStatementHandler(store *services.StatementStore, clock ports.Clock) *StatementHandler {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &StatementHandler{
		store: store,
		clock: clock,
	}
}

// MakeRequest describes a statement to create. Author and Note, when set,
// are turned into the usual statement metadata ahead of Metadata.
type MakeRequest struct {
	Subject   string
	Predicate string
	Object    string
	Metadata  []string
	Author    string
	Note      string
}

// HandleGenerateID returns a fresh id.
func (h *StatementHandler) HandleGenerateID(ctx context.Context) (entities.Tid, error) {
	return h.store.GenerateUniqueEntityID(ctx)
}

// HandleMake creates a statement and returns its id.
func (h *StatementHandler) HandleMake(ctx context.Context, req MakeRequest) (entities.Tid, error) {
	subject, err := ParseID(req.Subject)
	if err != nil {
		return 0, err
	}
	predicate, err := ParseID(req.Predicate)
	if err != nil {
		return 0, err
	}
	object, err := ParseObject(req.Object)
	if err != nil {
		return 0, err
	}
	md, err := h.metadata(req.Author, req.Note, req.Metadata, entities.StatementMetadata)
	if err != nil {
		return 0, err
	}
	return h.store.MakeStatementWithMetadata(ctx, subject, predicate, object, md)
}

// HandleCancel cancels a statement and returns the cancellation id.
func (h *StatementHandler) HandleCancel(ctx context.Context, statementID, author, note string, pairs []string) (entities.Tid, error) {
	id, err := ParseID(statementID)
	if err != nil {
		return 0, err
	}
	md, err := h.metadata(author, note, pairs, entities.CancellationMetadata)
	if err != nil {
		return 0, err
	}
	return h.store.CancelStatement(ctx, id, md)
}

// HandleGet returns one statement.
func (h *StatementHandler) HandleGet(ctx context.Context, statementID string) (entities.Statement, error) {
	id, err := ParseID(statementID)
	if err != nil {
		return entities.Statement{}, err
	}
	return h.store.GetStatement(ctx, id)
}

// BatchResult contains the ids produced by a batch, one per command.
type BatchResult struct {
	IDs []entities.Tid `json:"ids"`
}

// BatchOptions controls how a batch is read and attributed.
type BatchOptions struct {
	// Format is "json", "csv" or empty for auto-detection.
	Format string
	// Author and Note, when set, become the standard metadata of every
	// command, ahead of the command's own pairs.
	Author string
	Note   string
}

// HandleBatchFile runs the commands in the file at path as one batch. The
// format follows the file extension unless opts names one.
func (h *StatementHandler) HandleBatchFile(ctx context.Context, path string, opts BatchOptions) (*BatchResult, error) {
	parser := parsers.ForFormat(opts.Format)
	if opts.Format == "" {
		parser = parsers.ForFile(path)
	}
	if parser == nil {
		return nil, fmt.Errorf("unsupported batch format for %s (use --format json or csv)", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	return h.runBatch(ctx, parser, file, opts)
}

// HandleBatch runs the commands read from r as one batch. Without a format
// the input is read as JSON.
func (h *StatementHandler) HandleBatch(ctx context.Context, r io.Reader, opts BatchOptions) (*BatchResult, error) {
	format := opts.Format
	if format == "" {
		format = "json"
	}
	parser := parsers.ForFormat(format)
	if parser == nil {
		return nil, fmt.Errorf("unsupported batch format: %s", format)
	}
	return h.runBatch(ctx, parser, r, opts)
}

func (h *StatementHandler) runBatch(ctx context.Context, parser parsers.Parser, r io.Reader, opts BatchOptions) (*BatchResult, error) {
	raw, err := parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("reading batch: %w", err)
	}

	cmds := make([]entities.Command, 0, len(raw))
	for _, rc := range raw {
		cmd, err := h.toCommand(rc, opts)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", rc.LineNum, err)
		}
		cmds = append(cmds, cmd)
	}

	ids, err := h.store.MakeMultipleStatementsAndCancellations(ctx, cmds)
	if err != nil {
		var batchErr *entities.BatchError
		if errors.As(err, &batchErr) && batchErr.Index < len(raw) {
			return nil, fmt.Errorf("line %d: %w", raw[batchErr.Index].LineNum, err)
		}
		return nil, err
	}
	return &BatchResult{IDs: ids}, nil
}

func (h *StatementHandler) toCommand(rc parsers.RawCommand, opts BatchOptions) (entities.Command, error) {
	switch entities.CommandOp(strings.ToLower(strings.TrimSpace(rc.Op))) {
	case entities.OpMakeStatement:
		subject, err := ParseID(rc.Subject)
		if err != nil {
			return entities.Command{}, err
		}
		predicate, err := ParseID(rc.Predicate)
		if err != nil {
			return entities.Command{}, err
		}
		object, err := ParseObject(rc.Object)
		if err != nil {
			return entities.Command{}, err
		}
		md, err := h.metadata(opts.Author, opts.Note, rc.Metadata, entities.StatementMetadata)
		if err != nil {
			return entities.Command{}, err
		}
		return entities.MakeStatementCommand(subject, predicate, object, md), nil
	case entities.OpCancelStatement:
		id, err := ParseID(rc.StatementID)
		if err != nil {
			return entities.Command{}, err
		}
		md, err := h.metadata(opts.Author, opts.Note, rc.Metadata, entities.CancellationMetadata)
		if err != nil {
			return entities.Command{}, err
		}
		return entities.CancelStatementCommand(id, md), nil
	default:
		return entities.Command{}, fmt.Errorf("%w: unknown command %q", entities.ErrInvalidStatement, rc.Op)
	}
}

func (h *StatementHandler) metadata(
	author, note string,
	pairs []string,
	standard func(entities.Tid, time.Time, string) entities.Metadata,
) (entities.Metadata, error) {
	extra, err := ParseMetadata(pairs)
	if err != nil {
		return nil, err
	}
	if author == "" {
		if note != "" {
			return nil, errors.New("a note needs an author")
		}
		return extra, nil
	}
	a, err := ParseID(author)
	if err != nil {
		return nil, err
	}
	return append(standard(a, h.clock.Now(), note), extra...), nil
}
