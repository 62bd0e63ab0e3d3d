package sdl

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// templateFuncs provides helper functions for templates.
var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

// templates holds the parsed SDL templates. They are fixed at build time,
// so a parse failure is a programming error.
var templates = template.Must(
	template.New("sdl").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.tmpl"),
)

// render executes a named template into a string.
func render(name string, data interface{}) string {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		panic(fmt.Errorf("executing %s template: %w", name, err))
	}
	return b.String()
}
