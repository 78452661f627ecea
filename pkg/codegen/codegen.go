// Package codegen renders a frozen execution trace into runnable Playwright
// test source. Generation is pure and deterministic: the same trace and
// language always produce byte-identical output.
package codegen

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tracewright/tracewright/pkg/tools"
	"github.com/tracewright/tracewright/pkg/trace"
)

// Supported target languages.
const (
	LangTypeScript = "typescript"
	LangJavaScript = "javascript"
	LangPython     = "python"
)

// Generator synthesizes test source from frozen traces.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// Generate renders the trace in the target language and suggests a file
// name. The trace is read-only; failed steps, observational actions, and
// duplicate actions are filtered out, and a navigation to the start URL is
// always the first step.
func (g *Generator) Generate(frozen *trace.ExecutionTrace, language string) (string, string, error) {
	switch language {
	case LangTypeScript, LangJavaScript, LangPython:
	default:
		return "", "", fmt.Errorf("unsupported language %q", language)
	}

	steps := planSteps(frozen)
	var code string
	if language == LangPython {
		code = renderPython(frozen.Task, steps)
	} else {
		code = renderJS(frozen.Task, steps, language == LangTypeScript)
	}
	return code, suggestFilename(steps, language), nil
}

// planSteps filters the trace down to the calls worth replaying. A navigate
// to the run's start URL is always prepended so the generated test is
// self-contained.
func planSteps(frozen *trace.ExecutionTrace) []trace.ToolCall {
	steps := make([]trace.ToolCall, 0, frozen.Len()+1)
	seen := make(map[string]bool)

	if frozen.StartURL != "" {
		start := trace.ToolCall{Kind: trace.KindNavigate, URL: frozen.StartURL}
		steps = append(steps, start)
		seen[dedupeKey(start)] = true
	}

	for _, step := range frozen.Steps {
		if !step.Result.OK {
			continue
		}
		spec, ok := tools.Lookup(step.Call.Kind)
		if !ok || spec.Observational || spec.Terminal {
			continue
		}
		key := dedupeKey(step.Call)
		if seen[key] {
			continue
		}
		seen[key] = true
		steps = append(steps, step.Call)
	}
	return steps
}

func dedupeKey(call trace.ToolCall) string {
	return fmt.Sprintf("%s:%s:%s:%s", call.Kind, call.Selector, call.Value, call.URL)
}

func renderJS(task string, steps []trace.ToolCall, typescript bool) string {
	var b strings.Builder
	if typescript {
		b.WriteString("import { test, expect } from '@playwright/test';\n\n")
	} else {
		b.WriteString("const { test, expect } = require('@playwright/test');\n\n")
	}
	fmt.Fprintf(&b, "test('%s', async ({ page }) => {\n", escapeJS(testTitle(task)))
	for _, call := range steps {
		b.WriteString("  " + jsLine(call) + "\n")
	}
	if len(steps) == 0 {
		b.WriteString("  // No steps recorded.\n")
	}
	b.WriteString("});\n")
	return b.String()
}

func renderPython(task string, steps []trace.ToolCall) string {
	var b strings.Builder
	b.WriteString("import pytest\nfrom playwright.sync_api import Page, expect\n\n\n")
	b.WriteString("def test_generated(page: Page):\n")
	fmt.Fprintf(&b, "    \"\"\"%s\"\"\"\n", escapePy(testTitle(task)))
	for _, call := range steps {
		b.WriteString("    " + pyLine(call) + "\n")
	}
	if len(steps) == 0 {
		b.WriteString("    pass  # No steps recorded.\n")
	}
	return b.String()
}

func jsLine(call trace.ToolCall) string {
	selector := escapeJS(call.Selector)
	value := escapeJS(call.Value)
	switch call.Kind {
	case trace.KindNavigate:
		return fmt.Sprintf("await page.goto('%s');", escapeJS(call.URL))
	case trace.KindClick:
		return fmt.Sprintf("await page.click('%s');", selector)
	case trace.KindClickText:
		return fmt.Sprintf("await page.getByText('%s').click();", value)
	case trace.KindFill:
		return fmt.Sprintf("await page.fill('%s', '%s');", selector, value)
	case trace.KindPress:
		if selector != "" {
			return fmt.Sprintf("await page.press('%s', '%s');", selector, value)
		}
		return fmt.Sprintf("await page.keyboard.press('%s');", value)
	case trace.KindSelect:
		return fmt.Sprintf("await page.selectOption('%s', '%s');", selector, value)
	case trace.KindCheck:
		return fmt.Sprintf("await page.check('%s');", selector)
	case trace.KindScroll:
		return fmt.Sprintf("await page.mouse.wheel(0, %d);", scrollDelta(call.Value))
	case trace.KindWait:
		if selector != "" {
			return fmt.Sprintf("await page.locator('%s').waitFor({ state: 'visible' });", selector)
		}
		return fmt.Sprintf("await page.waitForTimeout(%s);", waitMillis(call.Value))
	default:
		return fmt.Sprintf("// Unsupported action: %s", call.Kind)
	}
}

func pyLine(call trace.ToolCall) string {
	selector := escapePy(call.Selector)
	value := escapePy(call.Value)
	switch call.Kind {
	case trace.KindNavigate:
		return fmt.Sprintf(`page.goto("%s")`, escapePy(call.URL))
	case trace.KindClick:
		return fmt.Sprintf(`page.click("%s")`, selector)
	case trace.KindClickText:
		return fmt.Sprintf(`page.get_by_text("%s").click()`, value)
	case trace.KindFill:
		return fmt.Sprintf(`page.fill("%s", "%s")`, selector, value)
	case trace.KindPress:
		if selector != "" {
			return fmt.Sprintf(`page.press("%s", "%s")`, selector, value)
		}
		return fmt.Sprintf(`page.keyboard.press("%s")`, value)
	case trace.KindSelect:
		return fmt.Sprintf(`page.select_option("%s", "%s")`, selector, value)
	case trace.KindCheck:
		return fmt.Sprintf(`page.check("%s")`, selector)
	case trace.KindScroll:
		return fmt.Sprintf("page.mouse.wheel(0, %d)", scrollDelta(call.Value))
	case trace.KindWait:
		if selector != "" {
			return fmt.Sprintf(`page.locator("%s").wait_for(state="visible")`, selector)
		}
		return fmt.Sprintf("page.wait_for_timeout(%s)", waitMillis(call.Value))
	default:
		return fmt.Sprintf("# Unsupported action: %s", call.Kind)
	}
}

func scrollDelta(value string) int {
	direction, pixels, err := tools.ParseScroll(value)
	if err != nil || value == "" {
		return 500
	}
	if direction == "up" {
		return -pixels
	}
	return pixels
}

func waitMillis(value string) string {
	if value == "" {
		return "1000"
	}
	return value
}

func testTitle(task string) string {
	task = strings.TrimSpace(task)
	if task == "" {
		return "generated test"
	}
	if len(task) > 80 {
		task = task[:80]
	}
	return task
}

func escapeJS(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", `\'`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

func escapePy(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// suggestFilename derives a name from the first navigated URL's host, e.g.
// test-example.spec.ts. Falls back to "generated" when no URL parses.
func suggestFilename(steps []trace.ToolCall, language string) string {
	name := "generated"
	for _, call := range steps {
		if call.Kind != trace.KindNavigate || call.URL == "" {
			continue
		}
		parsed, err := url.Parse(call.URL)
		if err != nil || parsed.Hostname() == "" {
			continue
		}
		host := strings.TrimPrefix(parsed.Hostname(), "www.")
		if label := strings.SplitN(host, ".", 2)[0]; label != "" {
			name = label
		}
		break
	}

	name = strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if name == "" {
		name = "generated"
	}

	switch language {
	case LangPython:
		return fmt.Sprintf("test-%s_test.py", name)
	case LangJavaScript:
		return fmt.Sprintf("test-%s.spec.js", name)
	default:
		return fmt.Sprintf("test-%s.spec.ts", name)
	}
}
