package fragment

import (
	"html/template"
	"strings"
)

// HTMLFormatter renders fragments as hx-swap-oob-style divs: one element
// per non-empty line, each addressed at Meta.TargetID with Meta.SwapStyle.
type HTMLFormatter struct{}

var lineTmpl = template.Must(template.New("line").Parse(
	`<div hx-swap-oob="{{.SwapStyle}}:#{{.TargetID}}" class="rcon-line rcon-{{.Class}}">{{.Text}}</div>`))

type lineData struct {
	SwapStyle string
	TargetID  string
	Class     string
	Text      string
}

func renderLines(class, body string, meta Meta) string {
	var b strings.Builder
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lineTmpl.Execute(&b, lineData{
			SwapStyle: defaultString(meta.SwapStyle, "beforeend"),
			TargetID:  defaultString(meta.TargetID, "rcon-console"),
			Class:     class,
			Text:      line,
		})
	}
	return b.String()
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func meta(m Meta) (string, string) {
	return defaultString(m.TargetID, "rcon-console"), defaultString(m.SwapStyle, "beforeend")
}

// Response renders a command's output, one div per line.
func (HTMLFormatter) Response(body, command string, m Meta) Fragment {
	targetID, swap := meta(m)
	return Fragment{HTML: renderLines("response", body, m), TargetID: targetID, SwapStyle: swap}
}

// Error renders a single-line error fragment tagged with kind.
func (HTMLFormatter) Error(kind, message string, m Meta) Fragment {
	targetID, swap := meta(m)
	html := renderLines("error", kind+": "+message, m)
	return Fragment{HTML: html, TargetID: targetID, SwapStyle: swap}
}

// Info renders a single informational line.
func (HTMLFormatter) Info(message string, m Meta) Fragment {
	targetID, swap := meta(m)
	return Fragment{HTML: renderLines("info", message, m), TargetID: targetID, SwapStyle: swap}
}

// Auth renders the outcome of an authentication attempt.
func (HTMLFormatter) Auth(success bool, detail string, m Meta) Fragment {
	targetID, swap := meta(m)
	class := "auth-ok"
	text := "authenticated"
	if !success {
		class = "auth-failed"
		text = "authentication failed"
	}
	if detail != "" {
		text = text + ": " + detail
	}
	return Fragment{HTML: renderLines(class, text, m), TargetID: targetID, SwapStyle: swap}
}

// ServerMessage renders an unsolicited upstream push.
func (HTMLFormatter) ServerMessage(body, severity string, m Meta) Fragment {
	targetID, swap := meta(m)
	class := "push-" + strings.ToLower(defaultString(severity, "generic"))
	return Fragment{HTML: renderLines(class, body, m), TargetID: targetID, SwapStyle: swap}
}
