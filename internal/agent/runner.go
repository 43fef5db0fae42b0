// Package agent implements the browsing agent: it takes a natural-language
// task, observes the live page, asks the LLM for one action at a time, and
// drives the page through rod until the task reports completion.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/DaGlaswen/ai-pay/internal/browser"
	"github.com/DaGlaswen/ai-pay/internal/llm"
	"github.com/DaGlaswen/ai-pay/internal/parse"
)

const (
	defaultMaxSteps  = 20
	maxSnapshotChars = 4000
	maxElements      = 60
)

// Runner binds the shared browser session to an LLM and exposes the
// run-task-against-page capability. A mutex serializes individual task
// execution; whole workflows are serialized one level up by the
// orchestrator that owns the session.
type Runner struct {
	session  *browser.Session
	llm      llm.Client
	log      *zap.Logger
	maxSteps int

	// sensitive maps placeholder names to secret values. The LLM only ever
	// sees the placeholder names; substitution happens at typing time.
	sensitive map[string]string

	taskMu sync.Mutex
}

// NewRunner creates a task runner over the shared session.
func NewRunner(session *browser.Session, client llm.Client, sensitive map[string]string, maxSteps int, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	return &Runner{
		session:   session,
		llm:       client,
		log:       log.Named("agent"),
		maxSteps:  maxSteps,
		sensitive: sensitive,
	}
}

// Start launches the underlying browser session.
func (r *Runner) Start(ctx context.Context) error {
	return r.session.Start(ctx)
}

// Stop shuts down the underlying browser session.
func (r *Runner) Stop() error {
	return r.session.Stop()
}

// Ready reports whether the browser session is up.
func (r *Runner) Ready() bool {
	return r.session.IsConnected()
}

// CreateTab opens a new page on the shared session.
func (r *Runner) CreateTab(ctx context.Context, url string) (*rod.Page, error) {
	return r.session.CreateTab(ctx, url)
}

// CurrentPage returns the page the session currently sits on.
func (r *Runner) CurrentPage() *rod.Page {
	return r.session.CurrentPage()
}

// action is the single-step decision decoded from the LLM reply.
type action struct {
	Action   string          `json:"action"` // click, type, navigate, scroll, wait, done
	Index    int             `json:"index"`
	Selector string          `json:"selector"`
	Text     string          `json:"text"`
	URL      string          `json:"url"`
	Reason   string          `json:"reason"`
	Result   json.RawMessage `json:"result"`
}

// RunTask executes a natural-language task against the given page (or the
// current page when nil) and returns the agent's final textual result. The
// call blocks until the task completes, fails, or runs out of steps.
func (r *Runner) RunTask(ctx context.Context, instruction string, page *rod.Page) (string, error) {
	r.taskMu.Lock()
	defer r.taskMu.Unlock()

	if page == nil {
		page = r.session.CurrentPage()
	}
	if page == nil {
		return "", fmt.Errorf("no page available for task")
	}

	r.log.Info("task started", zap.String("instruction", firstLine(instruction)))

	var history []string
	for step := 0; step < r.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("task cancelled: %w", err)
		}

		snapshot, err := r.snapshot(ctx, page)
		if err != nil {
			return "", fmt.Errorf("page snapshot failed: %w", err)
		}

		reply, err := r.llm.CompleteWithSystem(ctx, systemPrompt(r.sensitive), userPrompt(instruction, snapshot, history))
		if err != nil {
			return "", fmt.Errorf("LLM call failed: %w", err)
		}

		var act action
		if err := parse.ExtractJSONInto(reply, &act); err != nil {
			history = append(history, "reply was not a JSON action; asked again")
			continue
		}

		r.log.Debug("agent action",
			zap.Int("step", step),
			zap.String("action", act.Action),
			zap.String("reason", act.Reason))

		if act.Action == "done" {
			if len(act.Result) > 0 {
				return string(act.Result), nil
			}
			return reply, nil
		}

		if err := r.execute(ctx, page, act); err != nil {
			history = append(history, fmt.Sprintf("%s failed: %v", act.Action, err))
			continue
		}
		history = append(history, describe(act))
	}

	return "", fmt.Errorf("task did not complete within %d steps", r.maxSteps)
}

// execute performs one browser action.
func (r *Runner) execute(ctx context.Context, page *rod.Page, act action) error {
	timeout := 10 * time.Second

	switch act.Action {
	case "click":
		el, err := r.resolve(ctx, page, act, timeout)
		if err != nil {
			return err
		}
		return el.Click(proto.InputMouseButtonLeft, 1)

	case "type":
		el, err := r.resolve(ctx, page, act, timeout)
		if err != nil {
			return err
		}
		// Select existing content first so Input overwrites instead of appends.
		_ = el.SelectAllText()
		return el.Input(r.substitute(act.Text))

	case "navigate":
		if act.URL == "" {
			return fmt.Errorf("navigate requires a url")
		}
		if err := page.Context(ctx).Timeout(timeout).Navigate(act.URL); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		return page.Context(ctx).Timeout(timeout).WaitLoad()

	case "scroll":
		_, err := page.Context(ctx).Eval(`() => window.scrollBy(0, window.innerHeight * 0.8)`)
		return err

	case "wait":
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1500 * time.Millisecond):
			return nil
		}

	default:
		return fmt.Errorf("unknown action %q", act.Action)
	}
}

// resolve locates the element an action refers to, by explicit selector or
// by the index stamped onto interactive elements during the snapshot.
func (r *Runner) resolve(ctx context.Context, page *rod.Page, act action, timeout time.Duration) (*rod.Element, error) {
	selector := act.Selector
	if selector == "" {
		selector = fmt.Sprintf(`[data-aipay-idx="%d"]`, act.Index)
	}
	el, err := page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s", selector)
	}
	return el, nil
}

// substitute replaces {placeholder} occurrences with their secret values.
func (r *Runner) substitute(text string) string {
	for key, value := range r.sensitive {
		text = strings.ReplaceAll(text, "{"+key+"}", value)
	}
	return text
}

// pageSnapshot is what the LLM sees of the live page.
type pageSnapshot struct {
	URL      string        `json:"url"`
	Title    string        `json:"title"`
	Text     string        `json:"text"`
	Elements []pageElement `json:"elements"`
}

type pageElement struct {
	Index    int    `json:"index"`
	Tag      string `json:"tag"`
	Text     string `json:"text,omitempty"`
	Type     string `json:"type,omitempty"`
	Name     string `json:"name,omitempty"`
	Value    string `json:"value,omitempty"`
	Href     string `json:"href,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// snapshot captures the visible text and interactive elements of the page,
// stamping each interactive element with a stable index attribute the agent
// can click/type by.
func (r *Runner) snapshot(ctx context.Context, page *rod.Page) (*pageSnapshot, error) {
	script := fmt.Sprintf(`
	() => {
		const interactive = Array.from(document.querySelectorAll(
			'a, button, input, select, textarea, [role="button"], [onclick]'
		)).filter(el => {
			const rect = el.getBoundingClientRect();
			const style = window.getComputedStyle(el);
			return style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0;
		}).slice(0, %d);

		const elements = interactive.map((el, idx) => {
			el.setAttribute('data-aipay-idx', String(idx));
			return {
				index: idx,
				tag: el.tagName.toLowerCase(),
				text: (el.innerText || el.placeholder || '').trim().slice(0, 120),
				type: el.getAttribute('type') || '',
				name: el.getAttribute('name') || el.id || '',
				value: (el.value || '').slice(0, 120),
				href: (el.getAttribute('href') || '').slice(0, 200),
				disabled: !!el.disabled
			};
		});

		return {
			url: location.href,
			title: document.title,
			text: (document.body ? document.body.innerText : '').slice(0, %d),
			elements
		};
	}
	`, maxElements, maxSnapshotChars)

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           script,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate snapshot: %w", err)
	}
	if res == nil {
		return nil, errors.New("evaluate snapshot: no result")
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return decodeSnapshot(raw)
}

func decodeSnapshot(raw []byte) (*pageSnapshot, error) {
	var snap pageSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func describe(act action) string {
	switch act.Action {
	case "click":
		if act.Selector != "" {
			return fmt.Sprintf("clicked %s", act.Selector)
		}
		return fmt.Sprintf("clicked element %d", act.Index)
	case "type":
		return fmt.Sprintf("typed into element %d", act.Index)
	case "navigate":
		return fmt.Sprintf("navigated to %s", act.URL)
	default:
		return act.Action
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
