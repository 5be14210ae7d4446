package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/contextfinder/contextfinder/internal/cursor"
)

// BatchItem is one entry of a batch request.
type BatchItem struct {
	ID      string
	Action  string
	Payload map[string]any
}

// BatchItemResult is one entry's outcome, reported inline so a per-item
// error never fails the whole batch.
type BatchItemResult struct {
	ID     string
	Status string // "ok" | "error"
	Result *Response
	Error  *BatchError
}

// BatchError is the inline per-item error shape.
type BatchError struct {
	Code    string
	Message string
}

// BatchResult is the outcome of running a whole batch.
type BatchResult struct {
	Items     []BatchItemResult
	Truncated bool
}

// BatchExecutor runs a single batch item's payload (already $ref-resolved)
// against the router.
type BatchExecutor interface {
	ExecuteItem(ctx context.Context, action string, payload map[string]any) (Response, error)
}

// RunBatch executes items sequentially (required for deterministic $ref
// resolution), resolving "$ref": "#/items/<id>/<json-pointer>" placeholders
// against prior items' results, and enforces a single shared max_chars
// budget across the aggregate render: once appending an item's rendered
// result would overflow, that item's contribution is popped from the
// aggregate (reported with status "truncated", not counted against the
// budget or referenceable via $ref) and the batch is marked truncated=max_chars.
func RunBatch(ctx context.Context, exec BatchExecutor, items []BatchItem, maxChars int, render func(Response) string) BatchResult {
	results := make(map[string]*Response)
	var out []BatchItemResult
	usedChars := 0
	truncated := false

	for _, item := range items {
		resolved, err := resolveRefs(item.Payload, results)
		if err != nil {
			out = append(out, BatchItemResult{
				ID: item.ID, Status: "error",
				Error: &BatchError{Code: "invalid_request", Message: err.Error()},
			})
			continue
		}

		resp, err := exec.ExecuteItem(ctx, item.Action, resolved)
		if err != nil {
			out = append(out, BatchItemResult{
				ID: item.ID, Status: "error",
				Error: &BatchError{Code: "tool_error", Message: err.Error()},
			})
			continue
		}

		rendered := render(resp)
		if maxChars > 0 && usedChars+cursor.CountChars(rendered) > maxChars {
			truncated = true
			out = append(out, BatchItemResult{ID: item.ID, Status: "truncated"})
			continue
		}
		usedChars += cursor.CountChars(rendered)
		results[item.ID] = &resp
		out = append(out, BatchItemResult{ID: item.ID, Status: "ok", Result: &resp})
	}

	return BatchResult{Items: out, Truncated: truncated}
}

// resolveRefs walks payload recursively, replacing any
// {"$ref": "#/items/<id>/<json-pointer>"} object with the value found in
// prior items' results at that pointer.
func resolveRefs(payload map[string]any, prior map[string]*Response) (map[string]any, error) {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		resolved, err := resolveValue(v, prior)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveValue(v any, prior map[string]*Response) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if ref, ok := val["$ref"].(string); ok && len(val) == 1 {
			return lookupRef(ref, prior)
		}
		return resolveRefs(val, prior)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			resolved, err := resolveValue(elem, prior)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// lookupRef resolves "#/items/<id>/<json-pointer...>" against a prior
// item's result, marshaled through JSON so the pointer walk is
// type-agnostic.
func lookupRef(ref string, prior map[string]*Response) (any, error) {
	const prefix = "#/items/"
	if !strings.HasPrefix(ref, prefix) {
		return nil, fmt.Errorf("$ref must start with %q, got %q", prefix, ref)
	}
	rest := strings.TrimPrefix(ref, prefix)
	segs := strings.Split(rest, "/")
	if len(segs) == 0 {
		return nil, fmt.Errorf("malformed $ref %q", ref)
	}
	id := segs[0]
	resp, ok := prior[id]
	if !ok {
		return nil, fmt.Errorf("$ref refers to unknown or not-yet-run item %q", id)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	for _, seg := range segs[1:] {
		m, ok := doc.(map[string]any)
		if ok {
			child, exists := m[seg]
			if !exists {
				return nil, fmt.Errorf("$ref pointer segment %q not found", seg)
			}
			doc = child
			continue
		}
		arr, ok := doc.([]any)
		if !ok {
			return nil, fmt.Errorf("cannot index into non-array/object at segment %q", seg)
		}
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(arr) {
			return nil, fmt.Errorf("$ref array index %q out of range", seg)
		}
		doc = arr[i]
	}
	return doc, nil
}
