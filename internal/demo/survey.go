package demo

import (
	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/ui"
)

// Survey asks for a name in a modal form and greets the submitter.
func Survey(rc *engine.RenderContext, _ ir.Object) ui.Node {
	answer := engine.UseState(rc, ir.Null{})
	form := engine.UseForm(rc, surveyForm, func(values ir.Object) error {
		name, _ := ir.AsString(values.Get("name"))
		if name == "" {
			name = "stranger"
		}
		if err := answer.Set(ir.String(name)); err != nil {
			return err
		}
		return rc.ShowToast("Thanks, "+name, "success")
	})

	open := rc.Handler(func(ir.Event) error {
		return form.Show(ir.Object{"previous": answer.Get()})
	})

	greeting := "Nobody has answered yet"
	if name, ok := ir.AsString(answer.Get()); ok {
		greeting = "Hello, " + name
	}
	return ui.VStack(ui.Text(greeting), ui.Button("Open survey", open))
}

func surveyForm(data ir.Object) ir.FormSpec {
	def := data.Get("previous")
	if _, ok := def.(ir.String); !ok {
		def = nil
	}
	return ir.FormSpec{
		Title:       "Survey",
		AcceptLabel: "Send",
		Fields: []ir.FormField{
			{Name: "name", Label: "Your name", Type: "text", Default: def, Required: true},
		},
	}
}
