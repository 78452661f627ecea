package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/tracewright/tracewright/pkg/agent"
	"github.com/tracewright/tracewright/pkg/codegen"
	"github.com/tracewright/tracewright/pkg/llm"
	"github.com/tracewright/tracewright/pkg/llm/gemini"
	"github.com/tracewright/tracewright/pkg/llm/openai"
	"github.com/tracewright/tracewright/pkg/logging"
	"github.com/tracewright/tracewright/pkg/tools/browser"
	"github.com/tracewright/tracewright/pkg/types"
)

// startBrowserRun is the production runStarter: it launches a Chromium
// session, wires the executor and synthesizer, and runs the agent in a
// goroutine. The agent owns session teardown.
func (s *Server) startBrowserRun(ctx context.Context, cfg agent.RunConfig, provider llm.Provider, guard func(string) error) (<-chan *types.AgentEvent, <-chan *agent.Result, error) {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = agent.DefaultStepTimeout
	}

	var creds *browser.Credentials
	if cfg.Username != "" || cfg.Password != "" {
		creds = &browser.Credentials{Username: cfg.Username, Password: cfg.Password}
	}

	session, err := browser.Launch(browser.Options{
		Headless:      cfg.Headless,
		Credentials:   creds,
		ActionTimeout: float64(cfg.StepTimeout.Milliseconds()),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	execLog, _ := logging.NewLogger("executor")
	executor := browser.NewExecutor(session, execLog,
		browser.WithStepTimeout(cfg.StepTimeout))

	a, err := agent.New(cfg, provider,
		agent.WithExecutor(executor),
		agent.WithSession(session),
		agent.WithSynthesizer(codegen.New()),
		agent.WithNavigationGuard(guard))
	if err != nil {
		session.Close()
		return nil, nil, err
	}

	results := make(chan *agent.Result, 1)
	go func() {
		results <- a.Run(ctx)
	}()
	return a.Events(), results, nil
}

// buildProvider constructs the retry-decorated model client for a run.
// Request fields override server settings; the API key must come from the
// resolution chain before this is called.
func (s *Server) buildProvider(name, model, apiKey string) (llm.Provider, error) {
	if name == "" {
		name = s.settings.Provider.Name
	}
	if model == "" {
		model = s.settings.Provider.Model
	}

	var (
		inner llm.Provider
		err   error
	)
	switch strings.ToLower(name) {
	case "openai":
		opts := []openai.ProviderOption{}
		if model != "" {
			opts = append(opts, openai.WithModel(model))
		}
		if s.settings.Provider.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(s.settings.Provider.BaseURL))
		}
		inner, err = openai.NewProvider(apiKey, opts...)
	case "gemini":
		opts := []gemini.ProviderOption{}
		if model != "" {
			opts = append(opts, gemini.WithModel(model))
		}
		if s.settings.Provider.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(s.settings.Provider.BaseURL))
		}
		inner, err = gemini.NewProvider(apiKey, opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	if err != nil {
		return nil, err
	}
	return llm.WithRetry(inner), nil
}
