package dispatch

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"civic-dispatch/core/store"
	"civic-dispatch/core/utils"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/errgroup"
)

const (
	OpUpdateStatus = "update_status"
	OpFlagPriority = "flag_priority"

	bulkSchemaName = "bulk_request.json"
)

//go:embed schema/bulk_request.json
var bulkSchemaJSON []byte

type BulkRequest struct {
	Operation string
	IssueIDs  []int64
	Status    string
	Flagged   *bool
	Notes     string
	Actor     string
}

type BulkItemResult struct {
	IssueID int64  `json:"issue_id"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

type BulkResult struct {
	Operation string           `json:"operation"`
	Results   []BulkItemResult `json:"results"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}

// PartialFailure reports whether some, but not all, items failed.
func (r *BulkResult) PartialFailure() bool {
	return r.Failed > 0 && r.Succeeded > 0
}

type Flagger interface {
	SetFlag(ctx context.Context, id int64, flagged bool) error
}

// Bulk applies one operation to many issues. Each issue is handled in its own
// transaction, so a failure on one id never undoes the others.
type Bulk struct {
	ledger      *Ledger
	flags       Flagger
	audits      AuditLogger
	maxItems    int
	parallelism int
	schema      *jsonschema.Schema
	logger      *utils.Logger
	metrics     *Metrics
}

type BulkOptions struct {
	MaxItems    int
	Parallelism int
}

func NewBulk(ledger *Ledger, flags Flagger, audits AuditLogger, opts BulkOptions, logger *utils.Logger, metrics *Metrics) (*Bulk, error) {
	schema, err := compileBulkSchema()
	if err != nil {
		return nil, err
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 500
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	return &Bulk{
		ledger:      ledger,
		flags:       flags,
		audits:      audits,
		maxItems:    opts.MaxItems,
		parallelism: opts.Parallelism,
		schema:      schema,
		logger:      logger.With("bulk"),
		metrics:     metrics,
	}, nil
}

func compileBulkSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(bulkSchemaName, bytes.NewReader(bulkSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add bulk schema: %w", err)
	}
	schema, err := compiler.Compile(bulkSchemaName)
	if err != nil {
		return nil, fmt.Errorf("compile bulk schema: %w", err)
	}
	return schema, nil
}

// ValidatePayload checks a raw HTTP body against the bulk request schema.
func (b *Bulk) ValidatePayload(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return validationError("invalid_json", "request body is not valid JSON")
	}
	if err := b.schema.Validate(payload); err != nil {
		return &Error{Code: "invalid_payload", Message: err.Error(), Err: ErrValidation}
	}
	return nil
}

func (b *Bulk) validate(req *BulkRequest) error {
	req.Operation = strings.ToLower(strings.TrimSpace(req.Operation))
	if len(req.IssueIDs) == 0 {
		return validationError("issue_ids_required", "issue_ids must not be empty")
	}
	if len(req.IssueIDs) > b.maxItems {
		return validationError("too_many_items", "at most %d issue ids per request", b.maxItems)
	}
	for _, id := range req.IssueIDs {
		if id <= 0 {
			return validationError("invalid_issue", "issue ids must be positive")
		}
	}
	switch req.Operation {
	case OpUpdateStatus:
		req.Status = NormalizeStatus(req.Status)
		if !ValidStatus(req.Status) {
			return validationError("invalid_status", "status must be one of %s", strings.Join(store.IssueStatuses, ", "))
		}
	case OpFlagPriority:
		if req.Flagged == nil {
			return validationError("flagged_required", "flagged is required for %s", OpFlagPriority)
		}
	default:
		return validationError("unknown_operation", "unknown operation %q", req.Operation)
	}
	return nil
}

// Apply validates the whole request before touching any issue, then runs the
// per-issue operations with bounded parallelism. Per-issue failures are
// reported in the result, not as an error.
func (b *Bulk) Apply(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if err := b.validate(&req); err != nil {
		return nil, err
	}
	ids := dedupeIDs(req.IssueIDs)
	results := make([]BulkItemResult, len(ids))

	var g errgroup.Group
	g.SetLimit(b.parallelism)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			err := ctx.Err()
			if err == nil {
				err = b.applyOne(ctx, req, id)
			}
			b.metrics.bulkItem(req.Operation, err)
			item := BulkItemResult{IssueID: id, OK: err == nil}
			if err != nil {
				item.Code = Code(err)
				item.Error = err.Error()
			}
			results[i] = item
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].IssueID < results[j].IssueID })
	out := &BulkResult{Operation: req.Operation, Results: results}
	for _, r := range results {
		if r.OK {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	if b.audits != nil {
		if err := b.audits.Log(ctx, req.Actor, "issues.bulk", fmt.Sprintf("operation=%s items=%d succeeded=%d failed=%d",
			req.Operation, len(ids), out.Succeeded, out.Failed)); err != nil {
			b.logger.Errorf("audit issues.bulk: %v", err)
		}
	}
	if out.Failed > 0 {
		b.logger.Warnf("bulk %s: %d of %d items failed", req.Operation, out.Failed, len(ids))
	}
	return out, nil
}

func (b *Bulk) applyOne(ctx context.Context, req BulkRequest, id int64) error {
	switch req.Operation {
	case OpUpdateStatus:
		_, err := b.ledger.SetStatus(ctx, id, req.Status, req.Notes, req.Actor)
		return err
	case OpFlagPriority:
		return translateStoreError(b.flags.SetFlag(ctx, id, *req.Flagged), "issue_not_found", "issue not found")
	}
	return validationError("unknown_operation", "unknown operation %q", req.Operation)
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
