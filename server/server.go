// Package server exposes the REST control surface: workflow submission,
// status polling, cancellation, and a single-agent test invocation,
// thinly wrapping the scheduler behind a github.com/gin-gonic/gin router.
// The core never depends on this package; it is an adapter over the
// scheduler's blocking Run contract.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/praneethchandra/workflowforge/agent"
	"github.com/praneethchandra/workflowforge/config"
	"github.com/praneethchandra/workflowforge/core"
	"github.com/praneethchandra/workflowforge/scheduler"
	"github.com/praneethchandra/workflowforge/store"
	"github.com/praneethchandra/workflowforge/telemetry"
	"github.com/praneethchandra/workflowforge/workflow"
)

// Server wires the scheduler and an ExecutionStore behind the HTTP route
// table. One Server instance is shared across a process; each submitted
// workflow gets its own Scheduler, EventBus, and agent bindings, so runs
// never share mutable state.
type Server struct {
	logger    core.Logger
	factory   *agent.Factory
	execStore store.ExecutionStore
	metrics   telemetry.MetricsCollector

	mu   sync.Mutex
	runs map[string]*runTracker
}

// runTracker is the in-memory progress view for a run still in flight;
// once terminal its final record lives in execStore and the tracker is
// dropped.
type runTracker struct {
	mu          sync.Mutex
	status      workflow.WorkflowState
	progress    int
	currentTask string
	message     string
	cancel      context.CancelFunc
}

// New builds a Server. Pass nil for logger or execStore to get a no-op
// logger and an in-memory store respectively.
func New(logger core.Logger, factory *agent.Factory, execStore store.ExecutionStore) *Server {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if execStore == nil {
		execStore = store.NewMemoryStore()
	}
	return &Server{
		logger:    logger,
		factory:   factory,
		execStore: execStore,
		metrics:   telemetry.NoopMetrics{},
		runs:      make(map[string]*runTracker),
	}
}

// SetMetrics wires a real MetricsCollector (e.g. telemetry.NewOTelMetrics)
// into every workflow this Server subsequently submits. Until called, each
// run's circuit breakers report to a no-op collector.
func (s *Server) SetMetrics(m telemetry.MetricsCollector) {
	if m != nil {
		s.metrics = m
	}
}

// Router builds the gin.Engine serving the API routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	v1 := router.Group("/api/v1")
	v1.GET("/health", s.handleHealth)
	v1.POST("/workflows", s.handleSubmit)
	v1.GET("/workflows", s.handleList)
	v1.GET("/workflows/:id", s.handleGet)
	v1.GET("/workflows/:id/status", s.handleStatus)
	v1.DELETE("/workflows/:id", s.handleCancel)
	v1.POST("/agents/test", s.handleAgentTest)

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
}

// handleSubmit implements POST /api/v1/workflows. It validates the
// descriptor synchronously (an invalid descriptor never starts a run) and
// runs the workflow in the background, returning immediately with the
// execution id so the caller can poll status.
func (s *Server) handleSubmit(c *gin.Context) {
	var wf workflow.WorkflowDescriptor
	if err := c.ShouldBindJSON(&wf); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CONFIG_INVALID", "message": err.Error()})
		return
	}
	if wf.FailureStrategy == "" {
		wf.FailureStrategy = workflow.StopOnFirstFailure
	}
	if err := config.Validate(wf, s.factory.Known); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CONFIG_INVALID", "message": err.Error()})
		return
	}

	execID := uuid.New().String()
	runCtx, cancel := context.WithCancel(context.Background())
	tracker := &runTracker{status: workflow.WorkflowRunning, cancel: cancel}

	s.mu.Lock()
	s.runs[execID] = tracker
	s.mu.Unlock()

	bus := scheduler.NewEventBus(s.logger)
	bus.Subscribe(func(ev scheduler.Event) { s.observe(tracker, len(wf.Tasks), ev) })
	sched := scheduler.NewScheduler(s.logger, bus, s.factory).WithMetrics(s.metrics)

	go func() {
		defer bus.Close()
		rec, err := sched.RunWithID(runCtx, wf, execID)
		if err != nil {
			s.logger.Error("workflow run failed up front", map[string]interface{}{"execution_id": execID, "error": err.Error()})
			return
		}
		if putErr := s.execStore.Put(context.Background(), rec); putErr != nil {
			s.logger.Error("failed to persist execution record", map[string]interface{}{"execution_id": execID, "error": putErr.Error()})
		}
		s.mu.Lock()
		delete(s.runs, execID)
		s.mu.Unlock()
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"execution_id": execID,
		"status":       "queued",
		"total_tasks":  len(wf.Tasks),
	})
}

// observe updates a runTracker's progress view from an in-flight event
// stream; it never touches the scheduler's own state.
func (s *Server) observe(t *runTracker, total int, ev scheduler.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case scheduler.EventTaskStarted:
		t.currentTask = ev.TaskName
	case scheduler.EventTaskCompleted, scheduler.EventTaskFailed, scheduler.EventTaskCancelled:
		if total > 0 {
			t.progress += 100 / total
			if t.progress > 100 {
				t.progress = 100
			}
		}
	case scheduler.EventWorkflowFailed:
		if ev.Err != nil {
			t.message = ev.Err.Error()
		}
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	id := c.Param("id")

	s.mu.Lock()
	tracker, running := s.runs[id]
	s.mu.Unlock()

	if running {
		tracker.mu.Lock()
		defer tracker.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{
			"execution_id": id,
			"status":       tracker.status,
			"progress":     tracker.progress,
			"current_task": tracker.currentTask,
			"message":      tracker.message,
		})
		return
	}

	rec, err := s.execStore.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"execution_id": rec.ExecutionID,
		"status":       rec.State,
		"progress":     100,
	})
}

func (s *Server) handleGet(c *gin.Context) {
	rec, err := s.execStore.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleList(c *gin.Context) {
	page := atoiDefault(c.Query("page"), 1)
	pageSize := atoiDefault(c.Query("page_size"), 20)
	status := workflow.WorkflowState(c.Query("status"))

	recs, total, err := s.execStore.List(c.Request.Context(), status, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"executions": recs,
		"total":      total,
		"page":       page,
		"page_size":  pageSize,
	})
}

func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("id")

	s.mu.Lock()
	tracker, running := s.runs[id]
	s.mu.Unlock()

	if !running {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution not found or already terminal"})
		return
	}
	tracker.cancel()
	c.JSON(http.StatusAccepted, gin.H{"execution_id": id, "status": "cancelling"})
}

// handleAgentTest implements POST /api/v1/agents/test: build one agent
// descriptor, invoke one action against it directly (bypassing the
// scheduler and resilience pipeline — this is a diagnostic call, not a
// task), and return its normalized AgentResponse.
func (s *Server) handleAgentTest(c *gin.Context) {
	var req struct {
		Agent  workflow.AgentDescriptor `json:"agent"`
		Action string                   `json:"action"`
		Params map[string]interface{}   `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	built, err := s.factory.Build(req.Agent)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	resp, err := built.InvokeRaw(ctx, req.Action, req.Params)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return def
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return def
	}
	return n
}
