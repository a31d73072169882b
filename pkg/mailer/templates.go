package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// Template names understood by Render.
const (
	TemplateWelcome       = "welcome"
	TemplateWidgetCreated = "widget_created"
	TemplatePlanChanged   = "plan_changed"
)

var tmpl = template.Must(template.New("emails").Parse(`
{{define "welcome"}}
<p>Hi {{.Name}},</p>
<p>Your account is ready. Create a widget from your dashboard, paste the embed
snippet into your site, and your visitors can start asking questions.</p>
{{end}}

{{define "widget_created"}}
<p>Hi {{.Name}},</p>
<p>Your widget <strong>{{.WidgetName}}</strong> is live. Add it to your site with:</p>
<pre>{{.ScriptURL}}</pre>
<p>It answers only from the business summary you provided; anything else gets
a referral to {{.ContactEmail}}.</p>
{{end}}

{{define "plan_changed"}}
<p>Hi {{.Name}},</p>
<p>The plan for <strong>{{.WidgetName}}</strong> is now <strong>{{.Plan}}</strong>.</p>
{{end}}
`))

// Render renders a named template to subject, text, and html bodies.
func Render(name string, data map[string]any) (subject, text, html string, err error) {
	var buf bytes.Buffer
	if err = tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", "", "", fmt.Errorf("render %s: %w", name, err)
	}
	html = buf.String()
	switch name {
	case TemplateWelcome:
		subject = "Welcome to SiteReply"
	case TemplateWidgetCreated:
		subject = "Your chat widget is live"
	case TemplatePlanChanged:
		subject = "Your widget plan changed"
	default:
		subject = "Notification"
	}
	return subject, "", html, nil
}
