package generate

import (
	"strings"
	"text/template"
)

var (
	htmlTmpl = template.Must(template.New("html").Parse(`You are an expert HTML, CSS, JS developer.
Your task is to generate a complete, self-contained HTML file based on the user's request.

**Constraints:**
1. The output MUST be only raw html, css, js code.
2. Do NOT include any markdown formatting (e.g., ` + "```" + `html).
3. Do NOT include any explanatory text, comments, or conversation.
4. The code must be a single, complete page that can be saved directly to an ` + "`index.html`" + ` file.
5. Use plain HTML, CSS and JS.
6. Include all necessary imports.
7. Use the attachments if the request needs them; they are committed next to index.html.
8. The page will be tested against the list of checks when it is served.
9. Generate the code so that the checks pass in production.
10. Ignore checks that are not related to HTML, CSS or JS.
11. The code should be well-formatted.
{{if .Existing}}
**Existing Code:**
"{{.Existing}}"
{{end}}
**User Request:**
"{{.Brief}}"

**Attachments:**
{{.Attachments}}

**Checks:**
{{range .Checks}}- {{.}}
{{else}}None
{{end}}
**Generated HTML, CSS, JS Code:**
`))

	readmeTmpl = template.Must(template.New("readme").Parse(`You are a GitHub repository manager.
{{if .Existing}}Your task is to update the existing professional README.md so it also covers the changes in the updated html code.{{else}}Your task is to write a professional README.md for the project description and project html file.{{end}}

**Constraints:**
1. The output MUST be only raw README.md content.
2. Do NOT include any conversation.
3. The content must be complete and saved directly to a ` + "`README.md`" + ` file.
{{if .Existing}}
**Existing Readme:**
"{{.Existing}}"
{{end}}
**User Prompt:**
"{{.Brief}}"

**HTML file:**
"{{.HTML}}"
`))
)

type htmlPrompt struct {
	Brief       string
	Existing    string
	Attachments string
	Checks      []string
}

type readmePrompt struct {
	Brief    string
	Existing string
	HTML     string
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
