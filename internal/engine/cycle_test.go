package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/ui"
)

func TestEmitter_CoalescesPerFamilyAndTarget(t *testing.T) {
	em := &emitter{}
	em.emit(ir.SetTimer("a", 100))
	em.emit(ir.PostMessage("w", ir.String("one")))
	em.emit(ir.SetTimer("b", 100))
	em.emit(ir.ClearTimer("a"))
	em.emit(ir.PostMessage("w", ir.String("two")))
	em.emit(ir.MountSurface("w", "index.html"))
	em.emit(ir.UnmountSurface("w"))

	got := em.collect(3)
	kinds := make([]ir.EffectKind, len(got))
	for i, e := range got {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []ir.EffectKind{
		ir.EffectPostMessage,
		ir.EffectSetTimer,
		ir.EffectClearTimer,
		ir.EffectPostMessage,
		ir.EffectUnmountSurface,
	}, kinds)
	assert.Equal(t, ir.HookID("b"), got[1].Target)
	assert.Equal(t, ir.HookID("a"), got[2].Target)
}

func TestEmitter_DeterministicIDs(t *testing.T) {
	em := &emitter{}
	em.emit(ir.ShowToast("x", "hi", ""))
	em.emit(ir.ShowToast("x", "hi", ""))

	got := em.collect(9)
	require.Len(t, got, 2)
	assert.Equal(t, ir.EffectID(9, 0, ir.EffectShowToast, "x"), got[0].ID)
	assert.Equal(t, ir.EffectID(9, 1, ir.EffectShowToast, "x"), got[1].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.NotEqual(t, got[0].ID, (&emitter{effects: em.effects}).collect(10)[0].ID)
}

func asyncRoot(loader Loader, dep func(rc *RenderContext) ir.Value, finally func(ir.Result) error) Component {
	return func(rc *RenderContext, _ ir.Object) ui.Node {
		a := UseAsync(rc, loader, AsyncOptions{DependsOn: dep(rc), Finally: finally})
		return ui.Text(string(a.Load()))
	}
}

func propDep(rc *RenderContext) ir.Value { return rc.Props().Get("dep") }

func TestAsync_CorrelationAndStaleness(t *testing.T) {
	var settled []ir.Result
	e := newTestEngine(asyncRoot(
		func(context.Context) (ir.Value, error) { return ir.Int(1), nil },
		propDep,
		func(r ir.Result) error {
			settled = append(settled, r)
			return nil
		},
	))
	const id = ir.HookID("app/async#0")
	ctx := context.Background()

	r1, err := e.Cycle(ctx, ir.Request{Seq: 1, Props: ir.Object{"dep": ir.Int(1)}})
	require.NoError(t, err)
	require.Len(t, r1.Requeued, 1)
	snap := ir.Snapshot{}.Merge(r1.Delta)
	assert.Equal(t, "1", snap[id].DepKey)

	// Dependency changes: a new request id, the old one becomes stale.
	r2, err := e.Cycle(ctx, ir.Request{Seq: 2, Props: ir.Object{"dep": ir.Int(2)}, PriorState: snap})
	require.NoError(t, err)
	require.Len(t, r2.Requeued, 1)
	assert.NotEqual(t, r1.Requeued[0].RequestID, r2.Requeued[0].RequestID)
	snap = snap.Merge(r2.Delta)

	stale := ir.Completion(id, r1.Requeued[0].RequestID, ir.Ok(ir.String("old")))
	fresh := ir.Completion(id, r2.Requeued[0].RequestID, ir.Ok(ir.String("new")))
	r3, err := e.Cycle(ctx, ir.Request{
		Seq:        3,
		Props:      ir.Object{"dep": ir.Int(2)},
		PriorState: snap,
		Events:     []ir.Event{stale, fresh, fresh},
	})
	require.NoError(t, err)
	snap = snap.Merge(r3.Delta)

	assert.Equal(t, ir.LoadLoaded, snap[id].Load)
	assert.Equal(t, ir.String("new"), snap[id].Value)
	require.Len(t, r3.Dropped, 2)
	assert.Equal(t, dropStaleRequest, r3.Dropped[0].Reason)
	assert.Equal(t, dropNotLoading, r3.Dropped[1].Reason)
	require.Len(t, settled, 1, "Finally runs once")
	assert.True(t, settled[0].IsOK())
	assert.Empty(t, r3.Requeued)
}

func TestAsync_PreviousDataRetainedWhileReloading(t *testing.T) {
	e := newTestEngine(asyncRoot(nil, propDep, nil))
	const id = ir.HookID("app/async#0")
	ctx := context.Background()

	r1, err := e.Cycle(ctx, ir.Request{Seq: 1, Props: ir.Object{"dep": ir.String("a")}})
	require.NoError(t, err)
	snap := ir.Snapshot{}.Merge(r1.Delta)
	done := ir.Completion(id, r1.Requeued[0].RequestID, ir.Ok(ir.String("data-a")))
	r2, err := e.Cycle(ctx, ir.Request{Seq: 2, Props: ir.Object{"dep": ir.String("a")}, PriorState: snap, Events: []ir.Event{done}})
	require.NoError(t, err)
	snap = snap.Merge(r2.Delta)

	r3, err := e.Cycle(ctx, ir.Request{Seq: 3, Props: ir.Object{"dep": ir.String("b")}, PriorState: snap})
	require.NoError(t, err)
	snap = snap.Merge(r3.Delta)
	assert.Equal(t, ir.LoadLoading, snap[id].Load)
	assert.Equal(t, ir.String("data-a"), snap[id].Value)
}

func TestAsync_ErrorCompletionCaptured(t *testing.T) {
	e := newTestEngine(asyncRoot(nil, func(*RenderContext) ir.Value { return nil }, nil))
	const id = ir.HookID("app/async#0")

	r1 := cycle(t, e, 1, nil)
	snap := ir.Snapshot{}.Merge(r1.Delta)
	failed := ir.Completion(id, r1.Requeued[0].RequestID, ir.Fail(ir.ErrorInfo{Message: "no route", Code: "E_NET"}))
	r2 := cycle(t, e, 2, snap, failed)
	snap = snap.Merge(r2.Delta)

	assert.Equal(t, ir.LoadError, snap[id].Load)
	require.NotNil(t, snap[id].Error)
	assert.Equal(t, "E_NET", snap[id].Error.Code)
	assert.Equal(t, "error", r2.Tree.Text)
	assert.Empty(t, r2.Requeued, "errors are not retried automatically")
}

func TestAsync_DisabledThenEnabled(t *testing.T) {
	e := newTestEngine(func(rc *RenderContext, props ir.Object) ui.Node {
		off, _ := ir.AsBool(props.Get("off"))
		UseAsync(rc, nil, AsyncOptions{Disabled: off})
		return ui.Empty()
	})
	const id = ir.HookID("app/async#0")
	ctx := context.Background()

	r1, err := e.Cycle(ctx, ir.Request{Seq: 1, Props: ir.Object{"off": ir.Bool(true)}})
	require.NoError(t, err)
	assert.Empty(t, r1.Requeued)
	snap := ir.Snapshot{}.Merge(r1.Delta)
	assert.Equal(t, ir.LoadDisabled, snap[id].Load)

	r2, err := e.Cycle(ctx, ir.Request{Seq: 2, PriorState: snap})
	require.NoError(t, err)
	require.Len(t, r2.Requeued, 1)
	assert.Equal(t, ir.LoadLoading, r2.Delta.Set[id].Load)
}

func TestAsync_RequeueDroppedWhenSettledInSameCycle(t *testing.T) {
	e := newTestEngine(asyncRoot(nil, func(*RenderContext) ir.Value { return nil }, nil))
	const id = ir.HookID("app/async#0")
	reqID := ir.RequestID(id, "null")

	// A completion delivered together with the very first render settles
	// the hook before the response is built; nothing is left to load.
	resp := cycle(t, e, 1, nil, ir.Completion(id, reqID, ir.Ok(ir.Int(5))))
	assert.Empty(t, resp.Requeued)
	assert.Equal(t, ir.LoadLoaded, resp.Delta.Set[id].Load)
}

func TestRunLoader(t *testing.T) {
	ctx := context.Background()
	const id = ir.HookID("app/async#0")

	t.Run("success", func(t *testing.T) {
		e := newTestEngine(asyncRoot(func(context.Context) (ir.Value, error) { return ir.String("ok"), nil }, propDep, nil))
		r := cycle(t, e, 1, nil)
		ev, err := e.RunLoader(ctx, ir.Snapshot{}.Merge(r.Delta), nil, r.Requeued[0])
		require.NoError(t, err)
		assert.Equal(t, ir.Completion(id, r.Requeued[0].RequestID, ir.Ok(ir.String("ok"))), ev)
	})

	t.Run("panic becomes failure", func(t *testing.T) {
		e := newTestEngine(asyncRoot(func(context.Context) (ir.Value, error) { panic("loader exploded") }, propDep, nil))
		r := cycle(t, e, 1, nil)
		ev, err := e.RunLoader(ctx, ir.Snapshot{}.Merge(r.Delta), nil, r.Requeued[0])
		require.NoError(t, err)
		require.NotNil(t, ev.Error)
		assert.Equal(t, CodeLoaderPanic, ev.Error.Code)
		assert.Contains(t, ev.Error.Message, "loader exploded")
	})

	t.Run("cancellation propagates", func(t *testing.T) {
		e := newTestEngine(asyncRoot(func(ctx context.Context) (ir.Value, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, propDep, nil))
		r := cycle(t, e, 1, nil)
		lctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := e.RunLoader(lctx, ir.Snapshot{}.Merge(r.Delta), nil, r.Requeued[0])
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("unknown hook", func(t *testing.T) {
		e := newTestEngine(asyncRoot(nil, propDep, nil))
		_, err := e.RunLoader(ctx, nil, nil, ir.Requeue{HookID: "app/async#9", RequestID: "x"})
		assert.ErrorIs(t, err, ErrUnknownHook)
	})

	t.Run("unserializable value", func(t *testing.T) {
		e := newTestEngine(asyncRoot(func(context.Context) (ir.Value, error) { return ir.NoOp, nil }, propDep, nil))
		r := cycle(t, e, 1, nil)
		ev, err := e.RunLoader(ctx, ir.Snapshot{}.Merge(r.Delta), nil, r.Requeued[0])
		require.NoError(t, err)
		require.NotNil(t, ev.Error)
		assert.Equal(t, string(ErrCodeInvalidValue), ev.Error.Code)
	})
}

func timerRoot(running bool, d time.Duration) Component {
	return func(rc *RenderContext, props ir.Object) ui.Node {
		iv := UseInterval(rc, nil, d)
		if run, _ := ir.AsBool(props.Get("run")); run || running {
			_ = iv.Start()
		} else {
			_ = iv.Stop()
		}
		return ui.Empty()
	}
}

func TestInterval_Idempotence(t *testing.T) {
	e := newTestEngine(timerRoot(true, 500*time.Millisecond))
	r1 := cycle(t, e, 1, nil)
	require.Len(t, r1.Effects, 1)
	assert.Equal(t, ir.EffectSetTimer, r1.Effects[0].Kind)
	assert.Equal(t, int64(500), r1.Effects[0].Timer.DurationMS)
	snap := ir.Snapshot{}.Merge(r1.Delta)

	for seq := int64(2); seq < 5; seq++ {
		r := cycle(t, e, seq, snap)
		assert.Empty(t, r.Effects, "seq %d", seq)
		assert.True(t, r.Delta.Empty())
	}

	// A new duration re-arms the timer.
	e2 := newTestEngine(timerRoot(true, time.Second))
	r := cycle(t, e2, 5, snap)
	require.Len(t, r.Effects, 1)
	assert.Equal(t, int64(1000), r.Effects[0].Timer.DurationMS)
}

func TestInterval_StopEmitsClearOnlyWhenRunning(t *testing.T) {
	e := newTestEngine(timerRoot(false, time.Second))
	r := cycle(t, e, 1, nil)
	assert.Empty(t, r.Effects)

	running := ir.Snapshot{}.Merge(cycle(t, newTestEngine(timerRoot(true, time.Second)), 1, nil).Delta)
	r = cycle(t, e, 2, running)
	require.Len(t, r.Effects, 1)
	assert.Equal(t, ir.EffectClearTimer, r.Effects[0].Kind)
}

func TestInterval_RejectsSubMillisecond(t *testing.T) {
	e := newTestEngine(timerRoot(true, time.Microsecond))
	_, err := e.Cycle(context.Background(), ir.Request{Seq: 1})
	var re *RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeInvalidValue, re.Code)
}

func TestPrune_TeardownEffects(t *testing.T) {
	child := func(rc *RenderContext, _ ir.Object) ui.Node {
		iv := UseInterval(rc, nil, time.Second)
		_ = iv.Start()
		wv := UseWebView(rc, WebViewOptions{})
		_ = wv.Mount()
		ch := UseChannel(rc, "room", nil)
		_ = ch.Subscribe()
		UseState(rc, ir.Int(1), Persistent())
		return ui.Empty()
	}
	root := func(rc *RenderContext, props ir.Object) ui.Node {
		if show, _ := ir.AsBool(props.Get("show")); show {
			return Element("Child", child, nil, "")
		}
		return ui.Empty()
	}
	e := newTestEngine(root)
	ctx := context.Background()

	r1, err := e.Cycle(ctx, ir.Request{Seq: 1, Props: ir.Object{"show": ir.Bool(true)}})
	require.NoError(t, err)
	require.Len(t, r1.Effects, 3)
	snap := ir.Snapshot{}.Merge(r1.Delta)

	r2, err := e.Cycle(ctx, ir.Request{Seq: 2, PriorState: snap})
	require.NoError(t, err)
	got := map[ir.EffectKind]ir.HookID{}
	for _, eff := range r2.Effects {
		got[eff.Kind] = eff.Target
	}
	assert.Equal(t, map[ir.EffectKind]ir.HookID{
		ir.EffectClearTimer:         "app/Child@0/interval#0",
		ir.EffectUnmountSurface:     "app/Child@0/webview#0",
		ir.EffectUnsubscribeChannel: "app/Child@0/channel#0",
	}, got)

	snap = snap.Merge(r2.Delta)
	assert.Contains(t, snap, ir.HookID("app/Child@0/state#0"), "persistent hooks survive")
	assert.NotContains(t, snap, ir.HookID("app/Child@0/$shape"))
	assert.ElementsMatch(t, []ir.HookID{
		"app/Child@0/$shape",
		"app/Child@0/channel#0",
		"app/Child@0/interval#0",
		"app/Child@0/webview#0",
	}, r2.Delta.Removed)
}

func TestDelta_Minimality(t *testing.T) {
	e := newTestEngine(func(rc *RenderContext, _ ir.Object) ui.Node {
		a := UseState(rc, ir.Int(0))
		b := UseState(rc, ir.Int(0))
		rc.Handler(func(ir.Event) error {
			if err := a.Set(ir.Int(5)); err != nil {
				return err
			}
			return a.Set(ir.Int(0))
		})
		rc.Handler(func(ir.Event) error { return b.Set(ir.Int(1)) })
		return ui.Empty()
	})
	snap := ir.Snapshot{}.Merge(cycle(t, e, 1, nil).Delta)

	r := cycle(t, e, 2, snap, ir.Interaction("app/handler#0", nil))
	assert.True(t, r.Delta.Empty(), "write back to the prior value is not a change")

	r = cycle(t, e, 3, snap, ir.Interaction("app/handler#1", nil))
	assert.Equal(t, []ir.HookID{"app/state#1"}, r.Delta.SetIDs())
	assert.Empty(t, r.Delta.Removed)
}

func TestWebView_MessagesStayWithTheirHook(t *testing.T) {
	panel := func(rc *RenderContext, props ir.Object) ui.Node {
		wv := UseWebView(rc, WebViewOptions{
			OnMessage: func(wv *WebView, payload ir.Value) error {
				return wv.PostMessage(ir.Object{"from": ir.String(string(wv.ID())), "got": payload})
			},
		})
		_ = wv.Mount()
		return ui.WebView(wv.ID())
	}
	e := newTestEngine(func(rc *RenderContext, _ ir.Object) ui.Node {
		return ui.HStack(Element("P", panel, nil, "a"), Element("P", panel, nil, "b"))
	})
	snap := ir.Snapshot{}.Merge(cycle(t, e, 1, nil).Delta)

	r := cycle(t, e, 2, snap,
		ir.SurfaceMessage("app/P@b/webview#0", ir.Int(2)),
		ir.SurfaceMessage("app/P@a/webview#0", ir.Int(1)),
	)
	require.Len(t, r.Effects, 2)
	for _, eff := range r.Effects {
		obj := eff.Message.Data.(ir.Object)
		assert.Equal(t, ir.String(string(eff.Target)), obj["from"])
	}
	assert.Equal(t, ir.HookID("app/P@b/webview#0"), r.Effects[0].Target)
	assert.Equal(t, ir.Int(2), r.Effects[0].Message.Data.(ir.Object)["got"])
}

func TestWebView_VisibilityTransitions(t *testing.T) {
	var unmounts int
	e := newTestEngine(func(rc *RenderContext, _ ir.Object) ui.Node {
		UseWebView(rc, WebViewOptions{
			URL: "app.html",
			OnUnmount: func(*WebView) error {
				unmounts++
				return nil
			},
		})
		return ui.Empty()
	})
	const id = ir.HookID("app/webview#0")

	r := cycle(t, e, 1, nil, ir.Visibility(id, false))
	require.Len(t, r.Dropped, 1)
	assert.Equal(t, dropNotMounted, r.Dropped[0].Reason)

	r = cycle(t, e, 2, nil, ir.Visibility(id, true))
	snap := ir.Snapshot{}.Merge(r.Delta)
	assert.Equal(t, "mounted", statusOf(snap[id]))
	assert.Empty(t, r.Effects, "the host reported the mount")

	r = cycle(t, e, 3, snap, ir.Visibility(id, false))
	assert.Equal(t, 1, unmounts)
	assert.Empty(t, r.Effects)
	assert.Equal(t, "unmounted", statusOf(r.Delta.Set[id]))
}

func TestForm_ShowOnlyFromHandlers(t *testing.T) {
	var submitted ir.Object
	e := newTestEngine(func(rc *RenderContext, _ ir.Object) ui.Node {
		f := UseForm(rc, func(data ir.Object) ir.FormSpec {
			title, _ := ir.AsString(data.Get("title"))
			return ir.FormSpec{Title: title}
		}, func(values ir.Object) error {
			submitted = values
			return nil
		})
		rc.Handler(func(ir.Event) error { return f.Show(ir.Object{"title": ir.String("Edit")}) })
		return ui.Empty()
	})
	const id = ir.HookID("app/form#0")

	r := cycle(t, e, 1, nil, ir.Interaction("app/handler#0", nil))
	require.Len(t, r.Effects, 1)
	assert.Equal(t, "Edit", r.Effects[0].Form.Spec.Title)
	snap := ir.Snapshot{}.Merge(r.Delta)

	r = cycle(t, e, 2, snap, ir.FormSubmission(id, ir.FormID(id, 1), ir.Object{"a": ir.Int(1)}))
	assert.Equal(t, ir.Object{"a": ir.Int(1)}, submitted)
	assert.Equal(t, "", fieldString(r.Delta.Set[id], "form_id"))

	r = cycle(t, e, 3, snap, ir.Event{Kind: ir.EventFormSubmission, Target: id, FormID: ir.FormID(id, 1), Payload: ir.Int(3)})
	require.Len(t, r.Errors, 1, "non-object values are a handler failure")
}

func TestChannel_BroadcastToEverySubscriber(t *testing.T) {
	var got []string
	listener := func(rc *RenderContext, props ir.Object) ui.Node {
		name, _ := ir.AsString(props.Get("name"))
		ch := UseChannel(rc, "room", func(payload ir.Value) error {
			if name == "bad" {
				return errors.New("listener failed")
			}
			got = append(got, name)
			return nil
		})
		_ = ch.Subscribe()
		return ui.Empty()
	}
	e := newTestEngine(func(rc *RenderContext, _ ir.Object) ui.Node {
		return ui.VStack(
			Element("L", listener, ir.Object{"name": ir.String("one")}, "one"),
			Element("L", listener, ir.Object{"name": ir.String("bad")}, "bad"),
			Element("L", listener, ir.Object{"name": ir.String("two")}, "two"),
		)
	})
	snap := ir.Snapshot{}.Merge(cycle(t, e, 1, nil).Delta)

	r := cycle(t, e, 2, snap, ir.ChannelMessage("room", ir.String("hi")))
	assert.Equal(t, []string{"one", "two"}, got)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "listener failed", r.Errors[0].Message)
}

func TestChannel_RenameResubscribes(t *testing.T) {
	room := "news"
	e := newTestEngine(func(rc *RenderContext, _ ir.Object) ui.Node {
		_ = UseChannel(rc, room, nil).Subscribe()
		return ui.Empty()
	})
	r := cycle(t, e, 1, nil)
	require.Len(t, r.Effects, 1)
	assert.Equal(t, ir.EffectSubscribeChannel, r.Effects[0].Kind)
	snap := ir.Snapshot{}.Merge(r.Delta)

	room = "ops"
	r = cycle(t, e, 2, snap)
	require.Len(t, r.Effects, 1, "one subscribe per hook; the host drops the old channel")
	assert.Equal(t, ir.EffectSubscribeChannel, r.Effects[0].Kind)
	assert.Equal(t, "ops", r.Effects[0].Channel.Name)
	assert.Equal(t, ir.String("ops"), r.Delta.Set["app/channel#0"].Value.(ir.Object)["channel"])
}

func TestShowToast_TargetsCurrentHandler(t *testing.T) {
	e := newTestEngine(func(rc *RenderContext, _ ir.Object) ui.Node {
		rc.Handler(func(ir.Event) error { return rc.ShowToast("saved", "success") }, Key("save"))
		return ui.Empty()
	})
	r := cycle(t, e, 1, nil, ir.Interaction("app/handler:save", nil))
	require.Len(t, r.Effects, 1)
	assert.Equal(t, ir.HookID("app/handler:save"), r.Effects[0].Target)
	assert.Equal(t, "saved", r.Effects[0].Toast.Text)

	bad := newTestEngine(func(rc *RenderContext, _ ir.Object) ui.Node {
		_ = rc.ShowToast("nope", "")
		return ui.Empty()
	})
	_, err := bad.Cycle(context.Background(), ir.Request{Seq: 1})
	assert.ErrorIs(t, err, ErrIllegalStateMutation)
}

func TestDiscoveryRender_DoesNotDuplicateMessages(t *testing.T) {
	e := newTestEngine(func(rc *RenderContext, _ ir.Object) ui.Node {
		wv := UseWebView(rc, WebViewOptions{})
		_ = wv.Mount()
		_ = wv.PostMessage(ir.String("hello"))
		rc.Handler(func(ir.Event) error { return nil })
		return ui.Empty()
	})
	r := cycle(t, e, 1, nil, ir.Interaction("app/handler#0", nil))
	var posts int
	for _, eff := range r.Effects {
		if eff.Kind == ir.EffectPostMessage {
			posts++
		}
	}
	assert.Equal(t, 1, posts)
	assert.True(t, r.HasEffect(ir.EffectMountSurface, "app/webview#0"))
}
