package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracewright/tracewright/pkg/trace"
)

func ok(kind trace.Kind, selector, value, url string) trace.Step {
	return trace.Step{
		Call:   trace.ToolCall{Kind: kind, Selector: selector, Value: value, URL: url},
		Result: trace.StepResult{OK: true},
	}
}

func failed(kind trace.Kind, selector string) trace.Step {
	return trace.Step{
		Call:   trace.ToolCall{Kind: kind, Selector: selector},
		Result: trace.StepResult{Reason: trace.ReasonElementNotFound, Error: "not found"},
	}
}

func loginTrace() *trace.ExecutionTrace {
	return &trace.ExecutionTrace{
		Task:     "log in to example",
		StartURL: "https://www.example.com/login",
		Steps: []trace.Step{
			ok(trace.KindFill, "#user", "admin", ""),
			ok(trace.KindFill, "#pass", "secret", ""),
			ok(trace.KindScreenshot, "", "", ""),
			failed(trace.KindClick, "#ghost"),
			ok(trace.KindClickText, "", "Sign in", ""),
			ok(trace.KindClickText, "", "Sign in", ""), // duplicate
			ok(trace.KindReadText, "h1", "", ""),
			ok(trace.KindFinish, "", "logged in", ""),
		},
	}
}

func TestGenerateTypeScript(t *testing.T) {
	code, filename, err := New().Generate(loginTrace(), LangTypeScript)
	require.NoError(t, err)

	assert.Equal(t, "test-example.spec.ts", filename)
	assert.Contains(t, code, "import { test, expect } from '@playwright/test';")
	assert.Contains(t, code, "await page.goto('https://www.example.com/login');")
	assert.Contains(t, code, "await page.fill('#user', 'admin');")
	assert.Contains(t, code, "await page.getByText('Sign in').click();")

	assert.Equal(t, 1, strings.Count(code, "getByText('Sign in')"), "duplicate actions are dropped")
	assert.NotContains(t, code, "#ghost", "failed steps are dropped")
	assert.NotContains(t, code, "h1", "observational steps are dropped")
	assert.NotContains(t, code, "finish")
}

func TestGeneratePython(t *testing.T) {
	code, filename, err := New().Generate(loginTrace(), LangPython)
	require.NoError(t, err)

	assert.Equal(t, "test-example_test.py", filename)
	assert.Contains(t, code, "from playwright.sync_api import Page, expect")
	assert.Contains(t, code, `page.goto("https://www.example.com/login")`)
	assert.Contains(t, code, `page.fill("#user", "admin")`)
	assert.Contains(t, code, `page.get_by_text("Sign in").click()`)
}

func TestGenerateJavaScript(t *testing.T) {
	code, filename, err := New().Generate(loginTrace(), LangJavaScript)
	require.NoError(t, err)

	assert.Equal(t, "test-example.spec.js", filename)
	assert.Contains(t, code, "const { test, expect } = require('@playwright/test');")
}

func TestGenerateIsDeterministic(t *testing.T) {
	g := New()
	frozen := loginTrace()
	for _, lang := range []string{LangTypeScript, LangJavaScript, LangPython} {
		first, firstName, err := g.Generate(frozen, lang)
		require.NoError(t, err)
		second, secondName, err := g.Generate(frozen, lang)
		require.NoError(t, err)
		assert.Equal(t, first, second, "%s output must be byte-identical", lang)
		assert.Equal(t, firstName, secondName)
	}
}

func TestGenerateEmptyTrace(t *testing.T) {
	frozen := &trace.ExecutionTrace{Task: "nothing", StartURL: "https://shop.example.org"}
	code, filename, err := New().Generate(frozen, LangTypeScript)
	require.NoError(t, err)

	assert.Equal(t, "test-shop.spec.ts", filename)
	assert.Contains(t, code, "await page.goto('https://shop.example.org');")
}

func TestGenerateActionRendering(t *testing.T) {
	frozen := &trace.ExecutionTrace{
		Task: "kitchen sink",
		Steps: []trace.Step{
			ok(trace.KindPress, "", "Enter", ""),
			ok(trace.KindPress, "#search", "Tab", ""),
			ok(trace.KindSelect, "#country", "NL", ""),
			ok(trace.KindCheck, "#agree", "", ""),
			ok(trace.KindScroll, "", "up:250", ""),
			ok(trace.KindWait, ".results", "", ""),
			ok(trace.KindWait, "", "1500", ""),
		},
	}

	code, _, err := New().Generate(frozen, LangTypeScript)
	require.NoError(t, err)
	assert.Contains(t, code, "await page.keyboard.press('Enter');")
	assert.Contains(t, code, "await page.press('#search', 'Tab');")
	assert.Contains(t, code, "await page.selectOption('#country', 'NL');")
	assert.Contains(t, code, "await page.check('#agree');")
	assert.Contains(t, code, "await page.mouse.wheel(0, -250);")
	assert.Contains(t, code, "await page.locator('.results').waitFor({ state: 'visible' });")
	assert.Contains(t, code, "await page.waitForTimeout(1500);")
}

func TestGenerateEscapesQuotes(t *testing.T) {
	frozen := &trace.ExecutionTrace{
		Task: "quoting",
		Steps: []trace.Step{
			ok(trace.KindFill, "input[name='q']", `it's "quoted"`, ""),
		},
	}

	ts, _, err := New().Generate(frozen, LangTypeScript)
	require.NoError(t, err)
	assert.Contains(t, ts, `await page.fill('input[name=\'q\']', 'it\'s "quoted"');`)

	py, _, err := New().Generate(frozen, LangPython)
	require.NoError(t, err)
	assert.Contains(t, py, `page.fill("input[name='q']", "it's \"quoted\"")`)
}

func TestGenerateUnsupportedLanguage(t *testing.T) {
	_, _, err := New().Generate(loginTrace(), "ruby")
	assert.Error(t, err)
}

func TestSuggestFilenameFallback(t *testing.T) {
	assert.Equal(t, "test-generated.spec.ts", suggestFilename(nil, LangTypeScript))
	steps := []trace.ToolCall{{Kind: trace.KindNavigate, URL: "https://intranet.local:8080/x"}}
	assert.Equal(t, "test-intranet_test.py", suggestFilename(steps, LangPython))
}
