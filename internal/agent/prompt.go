package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// systemPrompt describes the action protocol to the LLM. Secret values are
// referenced by placeholder name only.
func systemPrompt(sensitive map[string]string) string {
	var b strings.Builder
	b.WriteString(`You control a web browser to complete shopping tasks. On every turn you
receive the task, a snapshot of the current page, and the actions taken so
far. Respond with EXACTLY ONE JSON object and nothing else:

{"action": "click", "index": <element index>, "reason": "..."}
{"action": "click", "selector": "<css selector>", "reason": "..."}
{"action": "type", "index": <element index>, "text": "...", "reason": "..."}
{"action": "navigate", "url": "...", "reason": "..."}
{"action": "scroll", "reason": "..."}
{"action": "wait", "reason": "..."}
{"action": "done", "result": <the JSON object the task asked for>}

Rules:
- Interact only with elements listed in the snapshot, by their index.
- Close cookie/promo/subscription popups before anything else.
- Pay close attention to numbers and prices; do not ignore error popups.
- When the task defines a result format, finish with "done" and put that
  exact JSON object in "result".
- If the task cannot be completed, finish with "done" and a result that
  reports the failure in the task's format.
`)

	if len(sensitive) > 0 {
		keys := make([]string, 0, len(sensitive))
		for k := range sensitive {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nWhen a form needs personal or card data, type the placeholder in curly\nbraces and it will be replaced with the real value. Available placeholders: ")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "{%s}", k)
		}
		b.WriteString(".\n")
	}
	return b.String()
}

// userPrompt assembles the per-step message: task, page snapshot, history.
func userPrompt(instruction string, snap *pageSnapshot, history []string) string {
	var b strings.Builder

	b.WriteString("TASK:\n")
	b.WriteString(strings.TrimSpace(instruction))
	b.WriteString("\n\nCURRENT PAGE:\n")
	fmt.Fprintf(&b, "URL: %s\nTitle: %s\n\nVisible text:\n%s\n", snap.URL, snap.Title, snap.Text)

	b.WriteString("\nInteractive elements:\n")
	for _, el := range snap.Elements {
		data, _ := json.Marshal(el)
		b.Write(data)
		b.WriteByte('\n')
	}

	if len(history) > 0 {
		b.WriteString("\nActions so far:\n")
		for i, h := range history {
			fmt.Fprintf(&b, "%d. %s\n", i+1, h)
		}
	}

	b.WriteString("\nNext action:")
	return b.String()
}
