package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tracewright/tracewright/pkg/agent"
	"github.com/tracewright/tracewright/pkg/codegen"
	"github.com/tracewright/tracewright/pkg/config"
	"github.com/tracewright/tracewright/pkg/llm"
	"github.com/tracewright/tracewright/pkg/llm/gemini"
	"github.com/tracewright/tracewright/pkg/llm/openai"
	"github.com/tracewright/tracewright/pkg/logging"
	"github.com/tracewright/tracewright/pkg/tools/browser"
	"github.com/tracewright/tracewright/pkg/types"
)

var runFlags struct {
	task     string
	url      string
	username string
	password string
	language string
	provider string
	model    string
	apiKey   string
	output   string
	headed   bool
	enhance  bool
	verify   bool
	maxSteps int
	noColor  bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one task against a live browser and print the generated test",
	RunE:  runAgent,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.task, "task", "t", "", "natural-language task (required)")
	f.StringVarP(&runFlags.url, "url", "u", "", "start URL (required)")
	f.StringVar(&runFlags.username, "username", "", "HTTP basic-auth username")
	f.StringVar(&runFlags.password, "password", "", "HTTP basic-auth password")
	f.StringVarP(&runFlags.language, "language", "l", "typescript", "test language: typescript, javascript, or python")
	f.StringVar(&runFlags.provider, "provider", "", "model provider: openai or gemini")
	f.StringVar(&runFlags.model, "model", "", "model name")
	f.StringVar(&runFlags.apiKey, "api-key", "", "model API key (falls back to config, then environment)")
	f.StringVarP(&runFlags.output, "output", "o", "", "write the generated test to this file instead of stdout")
	f.BoolVar(&runFlags.headed, "headed", false, "show the browser window")
	f.BoolVar(&runFlags.enhance, "enhance", false, "rewrite the task for clarity before planning")
	f.BoolVar(&runFlags.verify, "verify", false, "verify each step with an extra model turn")
	f.IntVar(&runFlags.maxSteps, "max-steps", 0, "step budget (0 uses the default)")
	f.BoolVar(&runFlags.noColor, "no-color", false, "disable colored output")

	runCmd.MarkFlagRequired("task")
	runCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	if runFlags.noColor {
		color.NoColor = true
	}

	settings, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	provider, err := buildProvider(settings)
	if err != nil {
		return err
	}

	allow, err := config.NewAllowlist(settings.AllowedHosts)
	if err != nil {
		return err
	}

	cfg := agent.RunConfig{
		Task:             runFlags.task,
		URL:              runFlags.url,
		Username:         runFlags.username,
		Password:         runFlags.password,
		Language:         runFlags.language,
		Headless:         !runFlags.headed,
		EnhancePrompt:    runFlags.enhance || settings.Agent.EnhancePrompt,
		StepVerification: runFlags.verify || settings.Agent.StepVerification,
		MaxSteps:         runFlags.maxSteps,
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = settings.Agent.MaxSteps
	}
	cfg.StepTimeout = agent.DefaultStepTimeout
	if settings.Agent.StepTimeoutSecs > 0 {
		cfg.StepTimeout = time.Duration(settings.Agent.StepTimeoutSecs) * time.Second
	}
	if settings.Agent.RunTimeoutSecs > 0 {
		cfg.RunTimeout = time.Duration(settings.Agent.RunTimeoutSecs) * time.Second
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var creds *browser.Credentials
	if cfg.Username != "" || cfg.Password != "" {
		creds = &browser.Credentials{Username: cfg.Username, Password: cfg.Password}
	}
	session, err := browser.Launch(browser.Options{
		Headless:    cfg.Headless,
		Credentials: creds,
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	log, _ := logging.NewLogger("cli")
	opts := []agent.Option{
		agent.WithExecutor(browser.NewExecutor(session, log, browser.WithStepTimeout(cfg.StepTimeout))),
		agent.WithSession(session),
		agent.WithSynthesizer(codegen.New()),
	}
	if !allow.Empty() {
		opts = append(opts, agent.WithNavigationGuard(allow.Check))
	}

	a, err := agent.New(cfg, provider, opts...)
	if err != nil {
		session.Close()
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	results := make(chan *agent.Result, 1)
	go func() {
		results <- a.Run(ctx)
	}()

	code, filename := printEvents(a.Events())
	result := <-results

	if code != "" {
		if runFlags.output != "" {
			filename = runFlags.output
		}
		if err := os.WriteFile(filename, []byte(code), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", filename, err)
		}
		color.New(color.FgGreen).Printf("Wrote %s\n", filename)
	}

	if result.State == agent.StateFailing {
		return fmt.Errorf("run failed: %w", result.Err)
	}
	if result.State == agent.StateCancelled {
		return errors.New("run cancelled")
	}
	return nil
}

// printEvents renders the event stream to the terminal and captures the
// generated test, if any.
func printEvents(events <-chan *types.AgentEvent) (code, filename string) {
	cyan := color.New(color.FgCyan)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)

	for event := range events {
		switch event.Type {
		case types.EventTypeLog:
			cyan.Printf("  %s\n", event.Message)
		case types.EventTypeError:
			red.Printf("  %s\n", event.Message)
		case types.EventTypeCode:
			code, filename = event.Code, event.Filename
		case types.EventTypeComplete:
			green.Printf("%s\n", event.Message)
		}
	}
	return code, filename
}

// buildProvider selects and decorates the model client from flags, config,
// and environment.
func buildProvider(settings config.Settings) (llm.Provider, error) {
	name := runFlags.provider
	if name == "" {
		name = settings.Provider.Name
	}
	model := runFlags.model
	if model == "" {
		model = settings.Provider.Model
	}
	apiKey := runFlags.apiKey
	if apiKey == "" {
		apiKey = settings.Provider.APIKey
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
		if settings.Provider.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(settings.Provider.BaseURL))
		}
		inner, err = openai.NewProvider(apiKey, opts...)
	case "gemini":
		opts := []gemini.ProviderOption{}
		if model != "" {
			opts = append(opts, gemini.WithModel(model))
		}
		if settings.Provider.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(settings.Provider.BaseURL))
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
