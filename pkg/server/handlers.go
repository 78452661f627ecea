package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tracewright/tracewright/pkg/agent"
	"github.com/tracewright/tracewright/pkg/codegen"
	"github.com/tracewright/tracewright/pkg/store"
	"github.com/tracewright/tracewright/pkg/trace"
	"github.com/tracewright/tracewright/pkg/types"
)

// agentRequest is the POST /api/agent body. Absent fields fall back to
// server settings.
type agentRequest struct {
	Task     string `json:"task"`
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Language string `json:"language,omitempty"`

	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty"`

	Headless         *bool `json:"headless,omitempty"`
	EnhancePrompt    *bool `json:"enhance_prompt,omitempty"`
	StepVerification *bool `json:"step_verification,omitempty"`
	MaxSteps         int   `json:"max_steps,omitempty"`
}

type generateCodeRequest struct {
	Trace    trace.ExecutionTrace `json:"trace"`
	Language string               `json:"language,omitempty"`
}

// Health returns service status and version.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

// Metrics returns process-lifetime run counters.
func (s *Server) Metrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.metrics.snapshot())
}

// RunAgent starts a run and streams its events as server-sent events until
// the terminal event. Every event is also persisted, so the run can be
// re-fetched after the stream ends.
func (s *Server) RunAgent(c echo.Context) error {
	var req agentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	cfg := s.runConfig(req)
	if err := cfg.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	apiKey := s.resolveAPIKey(c, req)
	provider, err := s.buildProvider(req.Provider, req.Model, apiKey)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	runID := uuid.New().String()
	run := &store.Run{ID: runID, Task: req.Task, URL: req.URL, Language: cfg.Language}
	if err := s.store.CreateRun(c.Request().Context(), run); err != nil {
		s.log.Errorf("create run: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create run"})
	}

	// The run context derives from the request so a dropped client cancels
	// the run; the cancel endpoint reaches it through the registry.
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	s.register(runID, cancel)
	defer s.unregister(runID)

	var guard func(string) error
	if !s.allow.Empty() {
		guard = s.allow.Check
	}

	events, results, err := s.start(ctx, cfg, provider, guard)
	if err != nil {
		s.log.Errorf("run %s failed to start: %v", runID, err)
		if ferr := s.store.FinishRun(context.Background(), runID, store.StatusFailed, err.Error(), "", ""); ferr != nil {
			s.log.Warnf("run %s: finish: %v", runID, ferr)
		}
		s.metrics.recordOutcome(store.StatusFailed)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	s.log.Infof("run %s started: %s", runID, req.Task)
	s.metrics.recordStart()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Run-ID", runID)
	resp.WriteHeader(http.StatusOK)

	var (
		seq      int
		code     string
		filename string
	)
	for event := range events {
		if event.Type == types.EventTypeCode {
			code, filename = event.Code, event.Filename
		}
		// Persistence uses a background context so a dropped client does
		// not lose the record.
		if err := s.store.SaveEvent(context.Background(), runID, seq, event); err != nil {
			s.log.Warnf("run %s: persist event %d: %v", runID, seq, err)
		}
		seq++
		writeSSE(resp, event)
	}
	s.metrics.recordEvents(seq)

	result := <-results
	s.finishRun(runID, result, code, filename)
	return nil
}

// finishRun persists the terminal status and the frozen trace.
func (s *Server) finishRun(runID string, result *agent.Result, code, filename string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := store.StatusCompleted
	errMsg := ""
	switch result.State {
	case agent.StateFailing:
		status = store.StatusFailed
		if result.Err != nil {
			errMsg = result.Err.Error()
		}
	case agent.StateCancelled:
		status = store.StatusCancelled
	}

	if result.Trace != nil {
		if err := s.store.SaveTrace(ctx, runID, result.Trace); err != nil {
			s.log.Warnf("run %s: persist trace: %v", runID, err)
		}
	}
	if err := s.store.FinishRun(ctx, runID, status, errMsg, code, filename); err != nil {
		s.log.Warnf("run %s: finish: %v", runID, err)
	}
	s.metrics.recordOutcome(status)
	s.log.Infof("run %s finished: %s", runID, status)
}

// GenerateCode synthesizes test source from a submitted trace without
// running the agent.
func (s *Server) GenerateCode(c echo.Context) error {
	var req generateCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Language == "" {
		req.Language = codegen.LangTypeScript
	}

	code, filename, err := codegen.New().Generate(&req.Trace, req.Language)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"code":     code,
		"filename": filename,
	})
}

// CancelRun requests cooperative cancellation of a live run.
func (s *Server) CancelRun(c echo.Context) error {
	runID := c.Param("id")
	if !s.cancelActive(runID) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("no active run %s", runID)})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// GetRun returns a persisted run with its event stream.
func (s *Server) GetRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("id")

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	events, err := s.store.GetEvents(ctx, runID)
	if err != nil {
		s.log.Warnf("run %s: load events: %v", runID, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"run":    run,
		"events": events,
	})
}

// runConfig builds the run configuration from the request with server
// settings as defaults.
func (s *Server) runConfig(req agentRequest) agent.RunConfig {
	a := s.settings.Agent
	cfg := agent.RunConfig{
		Task:             req.Task,
		URL:              req.URL,
		Username:         req.Username,
		Password:         req.Password,
		Language:         req.Language,
		Headless:         a.Headless,
		EnhancePrompt:    a.EnhancePrompt,
		StepVerification: a.StepVerification,
		MaxSteps:         a.MaxSteps,
		MinStepsForCode:  a.MinStepsForCode,
	}
	if a.StepTimeoutSecs > 0 {
		cfg.StepTimeout = time.Duration(a.StepTimeoutSecs) * time.Second
	}
	if a.RunTimeoutSecs > 0 {
		cfg.RunTimeout = time.Duration(a.RunTimeoutSecs) * time.Second
	}
	if req.Headless != nil {
		cfg.Headless = *req.Headless
	}
	if req.EnhancePrompt != nil {
		cfg.EnhancePrompt = *req.EnhancePrompt
	}
	if req.StepVerification != nil {
		cfg.StepVerification = *req.StepVerification
	}
	if req.MaxSteps > 0 {
		cfg.MaxSteps = req.MaxSteps
	}
	return cfg
}

// resolveAPIKey picks the model API key: header, then request body, then
// server settings.
func (s *Server) resolveAPIKey(c echo.Context, req agentRequest) string {
	if key := c.Request().Header.Get("X-API-Key"); key != "" {
		return key
	}
	if req.APIKey != "" {
		return req.APIKey
	}
	return s.settings.Provider.APIKey
}

func writeSSE(resp *echo.Response, event *types.AgentEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(resp, "data: %s\n\n", data)
	resp.Flush()
}
