package agent

import (
	"strings"

	"github.com/hupe1980/insightmesh/internal/util"
)

// Provider supplies system prompt text derived from the call at runtime.
type Provider interface {
	Instruction(call *Call) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(call *Call) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(call *Call) (string, error) { return f(call) }

// Instruction is either a static prompt template or a dynamic provider.
//
// Static text is rendered with text/template against TemplateData, so a
// specialist can write
//
//	agent.NewInstructionFromText("Columns: {{join \", \" .columns}}")
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(call *Call) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(call *Call) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(call)
	}
	return util.RenderTemplate(i.text, TemplateData(call))
}

// TemplateData exposes a call to prompt templates: query, columns, schema,
// rows and every kwarg under its own key.
func TemplateData(call *Call) map[string]any {
	data := make(map[string]any, len(call.Kwargs)+4)
	for k, v := range call.Kwargs {
		data[k] = v
	}
	data["query"] = call.Query
	if call.Table != nil {
		cols := make([]any, 0, call.Table.Width())
		var schema strings.Builder
		for i, c := range call.Table.Columns() {
			cols = append(cols, c.Name)
			if i > 0 {
				schema.WriteString(", ")
			}
			schema.WriteString(c.Name + " " + string(c.Type))
		}
		data["columns"] = cols
		data["schema"] = schema.String()
		data["rows"] = call.Table.Len()
	}
	return data
}
