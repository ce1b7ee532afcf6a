// Package daemon wires the coordination daemon together: the durable store,
// the websocket event channel, the MCP tool channel, long-poll waiters and
// the rate limiter, all sharing one listener.
//
// No business logic lives here, only wiring.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/foreman/internal/activity"
	"github.com/HendryAvila/foreman/internal/config"
	"github.com/HendryAvila/foreman/internal/search"
	"github.com/HendryAvila/foreman/internal/store"
	"github.com/HendryAvila/foreman/internal/tools"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Daemon is one running coordination daemon for one project root.
type Daemon struct {
	root   string
	cfg    *config.Config
	logger *slog.Logger

	store    *store.Store
	index    *search.Index // nil when the search index is disabled
	hub      *Hub
	limiter  *Limiter
	waiters  *Waiters
	sessions *tools.SessionTracker

	httpSrv  *http.Server
	listener net.Listener
	port     int

	wake chan struct{}
	done chan struct{}

	indexMu    sync.Mutex
	indexDirty bool

	shutdownOnce sync.Once
}

// New opens the project root and assembles every subsystem, but does not
// listen yet; call Start for that.
func New(root string, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(root, store.Options{
		Logger: logger,
		ActivityLog: activity.Options{
			MaxBytes:        cfg.Log.MaxBytes,
			Retain:          cfg.Log.Retain,
			CompressTimeout: cfg.CompressTimeout(),
			Logger:          logger,
		},
	})
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		root:     root,
		cfg:      cfg,
		logger:   logger,
		store:    st,
		limiter:  NewLimiter(cfg.RateLimit.MaxRequests, cfg.RateWindow()),
		waiters:  NewWaiters(),
		sessions: tools.NewSessionTracker(),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	// The search index is an independent subsystem: if it fails to open,
	// the daemon still runs and list/search falls back to a linear scan.
	if cfg.SearchIndex {
		idx, err := search.Open(search.DefaultConfig(root))
		if err != nil {
			logger.Warn("search index disabled", "error", err)
		} else if err := idx.Rebuild(st.Snapshot().Tasks); err != nil {
			logger.Warn("search index disabled", "error", err)
			idx.Close()
		} else {
			d.index = idx
		}
	}

	dispatcher := &events{store: st, logger: logger}
	d.hub = NewHub(logger, cfg.Heartbeat(), d.snapshotEvent, dispatcher.handle)

	// Mutations wake long-polling workers and dirty the search index. The
	// callback runs under the store's lock, so it only signals a channel.
	st.SetNotify(func() {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	})
	go d.wakeLoop()

	return d, nil
}

func (d *Daemon) snapshotEvent() Outbound {
	return Outbound{Type: "STATE_SNAPSHOT", Payload: d.store.Snapshot()}
}

// wakeLoop turns store notifications into waiter wakeups off the store's
// lock.
func (d *Daemon) wakeLoop() {
	for {
		select {
		case <-d.wake:
			d.markIndexDirty()
			d.waiters.WakeAll()
		case <-d.done:
			return
		}
	}
}

func (d *Daemon) markIndexDirty() {
	if d.index == nil {
		return
	}
	d.indexMu.Lock()
	d.indexDirty = true
	d.indexMu.Unlock()
}

// searchTasks satisfies tools.SearchFunc: it refreshes the index from the
// current snapshot when stale, then runs the ranked query.
func (d *Daemon) searchTasks(query string, opts search.Options) ([]search.Hit, error) {
	d.indexMu.Lock()
	defer d.indexMu.Unlock()
	if d.indexDirty {
		if err := d.index.Rebuild(d.store.Snapshot().Tasks); err != nil {
			return nil, err
		}
		d.indexDirty = false
	}
	return d.index.Search(query, opts)
}

// waitForTask satisfies tools.WaitFunc: it parks until the next mutation,
// a connection-close cancellation, or the caller's context ends.
func (d *Daemon) waitForTask(ctx context.Context, workerID string) (bool, error) {
	ch := d.waiters.Register(workerID)
	select {
	case res := <-ch:
		return res == WaitCancelled, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-d.done:
		return true, nil
	}
}

// broadcastState pushes a fresh snapshot to every event-channel client
// after a tool-channel mutation, so UIs track agent activity live.
func (d *Daemon) broadcastState() {
	d.hub.Broadcast(d.snapshotEvent())
}

// mcpServer builds the tool channel: every tool registered, session hooks
// for connection-owned worker cleanup, and the sliding-window rate limit
// in front of every handler.
func (d *Daemon) mcpServer() *mcpserver.MCPServer {
	hooks := &mcpserver.Hooks{}
	hooks.AddOnRegisterSession(func(ctx context.Context, session mcpserver.ClientSession) {
		d.logger.Info("agent session opened", "session", session.SessionID())
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session mcpserver.ClientSession) {
		d.cleanupSession(session.SessionID())
	})

	s := mcpserver.NewMCPServer(
		"foreman",
		Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithHooks(hooks),
		mcpserver.WithToolHandlerMiddleware(d.rateLimit),
	)

	deps := tools.Deps{
		Store:     d.store,
		Sessions:  d.sessions,
		Wait:      d.waitForTask,
		Broadcast: d.broadcastState,
	}
	if d.index != nil {
		deps.Search = d.searchTasks
	}

	registerWorker := tools.NewRegisterWorkerTool(deps)
	s.AddTool(registerWorker.Definition(), registerWorker.Handle)

	nextTask := tools.NewNextTaskTool(deps)
	s.AddTool(nextTask.Definition(), nextTask.Handle)

	getContext := tools.NewContextTool(deps)
	s.AddTool(getContext.Definition(), getContext.Handle)

	submitPlan := tools.NewSubmitPlanTool(deps)
	s.AddTool(submitPlan.Definition(), submitPlan.Handle)

	approvalStatus := tools.NewApprovalStatusTool(deps)
	s.AddTool(approvalStatus.Definition(), approvalStatus.Handle)

	startStep := tools.NewStartStepTool(deps)
	s.AddTool(startStep.Definition(), startStep.Handle)

	completeStep := tools.NewCompleteStepTool(deps)
	s.AddTool(completeStep.Definition(), completeStep.Handle)

	completeTask := tools.NewCompleteTaskTool(deps)
	s.AddTool(completeTask.Definition(), completeTask.Handle)

	reportBlocked := tools.NewReportBlockedTool(deps)
	s.AddTool(reportBlocked.Definition(), reportBlocked.Handle)

	reportFiles := tools.NewReportFilesTool(deps)
	s.AddTool(reportFiles.Definition(), reportFiles.Handle)

	unblock := tools.NewUnblockWorkerTool(deps)
	s.AddTool(unblock.Definition(), unblock.Handle)

	proposeRail := tools.NewProposeRailTool(deps)
	s.AddTool(proposeRail.Definition(), proposeRail.Handle)

	listTasks := tools.NewListTasksTool(deps)
	s.AddTool(listTasks.Definition(), listTasks.Handle)

	setStatus := tools.NewSetTaskStatusTool(deps)
	s.AddTool(setStatus.Definition(), setStatus.Handle)

	createTask := tools.NewCreateTaskTool(deps)
	s.AddTool(createTask.Definition(), createTask.Handle)

	updateTask := tools.NewUpdateTaskTool(deps)
	s.AddTool(updateTask.Definition(), updateTask.Handle)

	deleteTask := tools.NewDeleteTaskTool(deps)
	s.AddTool(deleteTask.Definition(), deleteTask.Handle)

	createEpic := tools.NewCreateEpicTool(deps)
	s.AddTool(createEpic.Definition(), createEpic.Handle)

	updateEpic := tools.NewUpdateEpicTool(deps)
	s.AddTool(updateEpic.Definition(), updateEpic.Handle)

	deleteEpic := tools.NewDeleteEpicTool(deps)
	s.AddTool(deleteEpic.Definition(), deleteEpic.Handle)

	getActivity := tools.NewActivityTool(deps)
	s.AddTool(getActivity.Definition(), getActivity.Handle)

	qaApprove := tools.NewQAApproveTool(deps)
	s.AddTool(qaApprove.Definition(), qaApprove.Handle)

	qaReject := tools.NewQARejectTool(deps)
	s.AddTool(qaReject.Definition(), qaReject.Handle)

	createTeam := tools.NewCreateTeamTool(deps)
	s.AddTool(createTeam.Definition(), createTeam.Handle)

	joinTeam := tools.NewJoinTeamTool(deps)
	s.AddTool(joinTeam.Definition(), joinTeam.Handle)

	leaveTeam := tools.NewLeaveTeamTool(deps)
	s.AddTool(leaveTeam.Definition(), leaveTeam.Handle)

	listTeams := tools.NewListTeamsTool(deps)
	s.AddTool(listTeams.Definition(), listTeams.Handle)

	return s
}

// rateLimit rejects tool calls once a session exhausts its sliding window.
// Rejected calls get an immediate error, never a queue.
func (d *Daemon) rateLimit(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key := "anonymous"
		if session := mcpserver.ClientSessionFromContext(ctx); session != nil {
			key = session.SessionID()
		}
		allowed, count := d.limiter.Allow(key)
		if !allowed {
			limit, window := d.limiter.Limit()
			d.logger.Warn("rate limit exceeded",
				"session", key, "current", count, "limit", limit, "window", window)
			return mcp.NewToolResultError(fmt.Sprintf(
				"[rate_limited] %d requests in %s exceeds the limit of %d; retry after the window slides",
				count, window, limit)), nil
		}
		return next(ctx, req)
	}
}

// cleanupSession deletes every worker the closing connection owned,
// cancels their outstanding waits, and broadcasts the result once.
func (d *Daemon) cleanupSession(sessionID string) {
	workers := d.sessions.Drain(sessionID)
	if len(workers) == 0 {
		return
	}
	for _, id := range workers {
		d.waiters.Cancel(id)
		if err := d.store.DeleteWorker(id); err != nil {
			d.logger.Warn("worker cleanup", "worker", id, "error", err)
		}
	}
	d.limiter.Forget(sessionID)
	d.logger.Info("agent session closed", "session", sessionID, "workers_removed", len(workers))
	d.broadcastState()
}

// Start binds the listener and begins serving both channels. With port 0
// it scans upward from the configured base port; otherwise it binds the
// explicit port or fails.
func (d *Daemon) Start(port int) error {
	listener, bound, err := d.listen(port)
	if err != nil {
		return err
	}
	d.listener = listener
	d.port = bound

	streamable := mcpserver.NewStreamableHTTPServer(d.mcpServer())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.hub.ServeWS)
	mux.Handle("/mcp", streamable)
	mux.Handle("/mcp/", streamable)

	d.httpSrv = &http.Server{Handler: mux}

	if err := WritePortFile(d.root, d.cfg.Host, bound); err != nil {
		listener.Close()
		return err
	}

	go func() {
		if err := d.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			d.logger.Error("http server", "error", err)
		}
	}()

	d.logger.Info("daemon listening",
		"host", d.cfg.Host, "port", bound, "project", d.root, "version", Version)
	return nil
}

func (d *Daemon) listen(port int) (net.Listener, int, error) {
	if port > 0 {
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", d.cfg.Host, port))
		if err != nil {
			return nil, 0, fmt.Errorf("bind port %d: %w", port, err)
		}
		return l, port, nil
	}

	for p := d.cfg.BasePort; p < d.cfg.BasePort+d.cfg.PortSpan; p++ {
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", d.cfg.Host, p))
		if err == nil {
			return l, p, nil
		}
	}
	return nil, 0, fmt.Errorf("no free port in %d-%d",
		d.cfg.BasePort, d.cfg.BasePort+d.cfg.PortSpan-1)
}

// Port reports the bound port. Valid after Start.
func (d *Daemon) Port() int { return d.port }

// Shutdown runs the two-phase stop: notify event-channel clients and wait
// out the grace window, then close sockets, the listener, and the store.
// Safe to call more than once.
func (d *Daemon) Shutdown(ctx context.Context) error {
	var firstErr error
	d.shutdownOnce.Do(func() {
		d.logger.Info("daemon shutting down",
			"clients", d.hub.ClientCount(), "pending_waits", d.waiters.Outstanding())

		d.hub.Shutdown(d.cfg.ShutdownGrace())
		close(d.done)

		if d.httpSrv != nil {
			if err := d.httpSrv.Shutdown(ctx); err != nil {
				firstErr = err
			}
		}
		if err := RemovePortFile(d.root); err != nil && firstErr == nil {
			firstErr = err
		}
		if d.index != nil {
			if err := d.index.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}

		// Let an in-flight log rotation finish before releasing the root.
		d.store.ActivityLog().WaitRotation(d.cfg.CompressTimeout())
		if err := d.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}
