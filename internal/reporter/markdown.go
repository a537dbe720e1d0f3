package reporter

import (
	"bytes"
	"os"
	"strconv"
	"text/template"

	"github.com/joshharrison/schedcheck/internal/report"
)

const defaultMarkdownTemplate = `# Schedulability report: {{.TaskSet}}

- Report: ` + "`{{.ID}}`" + `
- Discipline: {{.Discipline}}
- Utilization: {{printf "%.4f" .Utilization}} (bound {{printf "%.4f" .Bound}})
- Verdict: **{{.Verdict}}** via {{.Method}}{{if not .Exact}} (sufficient test only){{end}}

| Task | Priority | Period | WCET | Deadline | Response | Slack | OK |
|------|---------:|-------:|-----:|---------:|---------:|------:|:--:|
{{- range .Tasks}}
| {{.Name}} | {{.Priority}} | {{.Period}} | {{.WCET}} | {{.Deadline}} | {{deref .ResponseTime}} | {{deref .Slack}} | {{if .Schedulable}}yes{{else}}no{{end}} |
{{- end}}
{{if .Notes}}
## Notes
{{range .Notes}}
- {{.}}
{{- end}}
{{end}}`

var templateFuncs = template.FuncMap{
	"deref": func(v *int64) string {
		if v == nil {
			return "-"
		}
		return strconv.FormatInt(*v, 10)
	},
}

// Markdown renders the report using either a custom template file or the default.
// Templates receive the *report.Report and may call deref on optional fields.
func (r *Reporter) Markdown(templatePath string) (string, error) {
	return RenderMarkdown(r.Report, templatePath)
}

// RenderMarkdown renders rep with the template at templatePath, or the
// built-in template when templatePath is empty.
func RenderMarkdown(rep *report.Report, templatePath string) (string, error) {
	tmplStr := defaultMarkdownTemplate
	if templatePath != "" {
		content, err := os.ReadFile(templatePath)
		if err != nil {
			return "", err
		}
		tmplStr = string(content)
	}

	tmpl, err := template.New("report").Funcs(templateFuncs).Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, rep); err != nil {
		return "", err
	}
	return buf.String(), nil
}
