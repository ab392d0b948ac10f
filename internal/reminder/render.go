package reminder

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"
)

// Content is the data a reminder email is rendered from.
type Content struct {
	Household string
	Week      string
	Assignee  string
	Slot      Slot
	Urgency   Urgency
	Chores    []string
	At        time.Time
	Link      string
}

// Message returns the slot message with the urgency note appended.
func (c Content) Message() string {
	if c.Urgency.Note == "" {
		return c.Slot.Message
	}
	return c.Slot.Message + " " + c.Urgency.Note
}

var textBody = template.Must(template.New("text").Parse(`Hi {{.Assignee}},

{{.Message}}

Pending chores ({{len .Chores}}):

{{range .Chores}}• {{.}}
{{end}}
Please upload a photo and mark them done in the app.{{if .Link}}
{{.Link}}{{end}}

---
Household: {{.Household}}
Week: {{.Week}}
Time: {{.At.Format "3:04 PM MST"}}
`))

var htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(`<p>Hi {{.Assignee}},</p>
<p>{{.Message}}</p>
<p>Pending chores ({{len .Chores}}):</p>
<ul>{{range .Chores}}<li>{{.}}</li>{{end}}</ul>
<p>Please upload a photo and mark them done{{if .Link}} in <a href="{{.Link}}">the app</a>{{else}} in the app{{end}}.</p>
<hr>
<p style="color:#666;font-size:12px">Household: {{.Household}}<br>Week: {{.Week}}<br>Time: {{.At.Format "3:04 PM MST"}}</p>
`))

// Subject renders e.g. "🚨 URGENT: Chores for Mon, Aug 18 (Abhay)".
func (c Content) Subject() string {
	return fmt.Sprintf("%s %s: Chores for %s (%s)", c.Urgency.Icon, c.Urgency.Label, c.At.Format("Mon, Jan 2"), c.Assignee)
}

// Render returns the plain text and HTML bodies.
func (c Content) Render() (text, html string, err error) {
	var tb, hb bytes.Buffer
	if err := textBody.Execute(&tb, c); err != nil {
		return "", "", fmt.Errorf("render text body: %w", err)
	}
	if err := htmlBody.Execute(&hb, c); err != nil {
		return "", "", fmt.Errorf("render html body: %w", err)
	}
	return tb.String(), strings.TrimSpace(hb.String()), nil
}
