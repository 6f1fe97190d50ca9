package engine

import (
	"fmt"

	"github.com/roach88/rehook/internal/ir"
)

// FormFunc produces a form description from the data passed to Show. The
// description is evaluated lazily, only when the form is shown.
type FormFunc func(data ir.Object) ir.FormSpec

// StaticForm returns a FormFunc that ignores its data.
func StaticForm(spec ir.FormSpec) FormFunc {
	return func(ir.Object) ir.FormSpec { return spec }
}

// Form is a modal form prompt. Its only state is a generation counter and
// the id of the currently open form; the id is derived from the hook id and
// generation, so a submission can be matched to the showing that produced
// it without anything surviving between invocations.
type Form struct {
	rc       *RenderContext
	id       ir.HookID
	spec     FormFunc
	onSubmit func(values ir.Object) error
}

func (f *Form) hookID() ir.HookID { return f.id }

// UseForm declares a form.
func UseForm(rc *RenderContext, spec FormFunc, onSubmit func(values ir.Object) error, opts ...HookOption) *Form {
	cfg := buildConfig(opts)
	id, fresh, err := rc.registerHook(ir.KindForm, cfg)
	f := &Form{rc: rc, id: id, spec: spec, onSubmit: onSubmit}
	if err != nil {
		return f
	}
	rc.bind(f)

	if _, ok := rc.store.Read(id); !ok || fresh {
		rc.write(id, ir.HookState{
			Kind:       ir.KindForm,
			Value:      ir.Object{"generation": ir.Int(0)},
			Persistent: cfg.persistent,
		})
	}
	return f
}

// ID returns the hook id.
func (f *Form) ID() ir.HookID { return f.id }

// OpenFormID returns the id of the form awaiting submission, or "".
func (f *Form) OpenFormID() string {
	st, _ := f.rc.store.Read(f.id)
	return fieldString(st, "form_id")
}

// Show opens the form. Event handlers only.
func (f *Form) Show(data ir.Object) error {
	if err := f.rc.requireEvent(f.id, "Form.Show"); err != nil {
		return err
	}
	st, _ := f.rc.store.Read(f.id)
	gen := fieldInt(st, "generation") + 1
	formID := ir.FormID(f.id, gen)

	if data == nil {
		data = ir.Object{}
	}
	spec := f.spec(data)
	for _, field := range spec.Fields {
		if field.Default == nil {
			continue
		}
		if err := f.rc.validValue(f.id, field.Default); err != nil {
			return err
		}
	}

	st.Kind = ir.KindForm
	st.Value = ir.Object{"generation": ir.Int(gen), "form_id": ir.String(formID)}
	f.rc.write(f.id, st)
	f.rc.emit(ir.ShowForm(f.id, formID, spec))
	return nil
}

// submit applies a form-submission event. The open form id is consumed so a
// duplicate submission is stale.
func (f *Form) submit(index int, ev ir.Event) (string, error) {
	st, _ := f.rc.store.Read(f.id)
	open := fieldString(st, "form_id")
	if open == "" || ev.FormID != open {
		return dropStaleForm, nil
	}
	st.Value = ir.Object{"generation": ir.Int(fieldInt(st, "generation"))}
	f.rc.write(f.id, st)

	values, ok := ev.Payload.(ir.Object)
	if !ok && ev.Payload != nil {
		if _, isNull := ev.Payload.(ir.Null); !isNull {
			return "", f.rc.invoke(index, ev, f.id, func() error {
				return fmt.Errorf("form values must be an object, got %s", ir.KindOf(ev.Payload))
			})
		}
	}
	if values == nil {
		values = ir.Object{}
	}
	if f.onSubmit == nil {
		return "", nil
	}
	return "", f.rc.invoke(index, ev, f.id, func() error { return f.onSubmit(values) })
}
