// Package tools implements the MCP tool handlers agents drive the daemon
// with.
//
// Each tool is a struct that receives its dependencies at construction and
// exposes Definition() for registration plus Handle() matching mcp-go's
// CallToolRequest signature. Domain failures come back as tool-result
// errors carrying the store's stable error code; only infrastructure
// failures surface as Go errors to the MCP layer.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/foreman/internal/ident"
	"github.com/HendryAvila/foreman/internal/plan"
	"github.com/HendryAvila/foreman/internal/search"
	"github.com/HendryAvila/foreman/internal/store"
)

// WaitFunc blocks until a task might be claimable for the worker, the wait
// is cancelled by its owning connection, or ctx ends. It reports whether
// the wait was cancelled.
type WaitFunc func(ctx context.Context, workerID string) (cancelled bool, err error)

// SearchFunc runs a ranked full-text query over tasks. Nil when the search
// index is disabled; callers fall back to a linear scan.
type SearchFunc func(query string, opts search.Options) ([]search.Hit, error)

// Deps carries everything the tool set needs. Broadcast pushes a fresh
// state snapshot to event-channel clients after a successful mutation.
type Deps struct {
	Store     *store.Store
	Sessions  *SessionTracker
	Wait      WaitFunc
	Search    SearchFunc
	Broadcast func()
}

func (d Deps) broadcast() {
	if d.Broadcast != nil {
		d.Broadcast()
	}
}

// track records a worker as owned by the calling connection's session, so
// the daemon can delete it when the connection closes. Ids without the
// worker prefix are not tracked; a typo must not queue a delete.
func (d Deps) track(ctx context.Context, workerID string) {
	if d.Sessions == nil || !ident.HasKind(workerID, ident.KindWorker) {
		return
	}
	if session := mcpserver.ClientSessionFromContext(ctx); session != nil {
		d.Sessions.Track(session.SessionID(), workerID)
	}
}

// SessionTracker maps MCP session ids to the worker ids created or used on
// that connection. Workers are ephemeral: connection close means worker
// cleanup.
type SessionTracker struct {
	mu      sync.Mutex
	workers map[string]map[string]bool
}

// NewSessionTracker builds an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{workers: map[string]map[string]bool{}}
}

// Track records that sessionID referenced workerID.
func (t *SessionTracker) Track(sessionID, workerID string) {
	if sessionID == "" || workerID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.workers[sessionID] == nil {
		t.workers[sessionID] = map[string]bool{}
	}
	t.workers[sessionID][workerID] = true
}

// Drain removes and returns every worker id owned by sessionID.
func (t *SessionTracker) Drain(sessionID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	owned := t.workers[sessionID]
	delete(t.workers, sessionID)
	ids := make([]string, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}
	return ids
}

// resultJSON marshals a payload as an indented text result.
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// resultError renders a domain error as a tool-result error with its
// stable code up front, so agents can branch on it without parsing prose.
func resultError(err error) *mcp.CallToolResult {
	var pe *plan.Error
	if errors.As(err, &pe) {
		return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", pe.Code, pe.Message))
	}
	return mcp.NewToolResultError(err.Error())
}
