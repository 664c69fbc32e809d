package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

var templateFuncs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []any) string {
		strItems := make([]string, len(items))
		for i, item := range items {
			strItems[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(strItems, sep)
	},
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

// RenderTemplate renders a prompt template with text/template. Prompts are
// plain text, so nothing is HTML-escaped.
func RenderTemplate(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("prompt").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
