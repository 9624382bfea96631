package jshost

import (
	"strings"

	"github.com/dop251/goja"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lookingglasspt/lkgcal/pkg/dom"
)

const elementConstructorSource = `(function Element() { throw new TypeError("Illegal constructor"); })`

// binder maps Go DOM nodes to their script objects. Identity is stable: the
// same *dom.Element always yields the same *goja.Object.
type binder struct {
	vm       *goja.Runtime
	env      *Environment
	proto    *goja.Object
	objects  map[*dom.Element]*goja.Object
	nodes    map[*goja.Object]*dom.Element
	styles   map[*dom.Element]*goja.Object
	classes  map[*dom.Element]*goja.Object
	sameFunc func(a, b dom.Listener) bool
}

func install(h *Host, vm *goja.Runtime, env *Environment) error {
	ctorValue, err := vm.RunString(elementConstructorSource)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create Element constructor")
	}
	ctor := ctorValue.ToObject(vm)
	proto := ctor.Get("prototype").ToObject(vm)

	b := &binder{
		vm:      vm,
		env:     env,
		proto:   proto,
		objects: make(map[*dom.Element]*goja.Object),
		nodes:   make(map[*goja.Object]*dom.Element),
		styles:  make(map[*dom.Element]*goja.Object),
		classes: make(map[*dom.Element]*goja.Object),
		sameFunc: func(a, c dom.Listener) bool {
			av, aok := a.(goja.Value)
			cv, cok := c.(goja.Value)
			return aok && cok && av.SameAs(cv)
		},
	}
	if err := b.defineElementPrototype(); err != nil {
		return err
	}

	document, err := b.newDocument()
	if err != nil {
		return err
	}

	alert := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		env.Alerter.Alert(call.Argument(0).String())
		return goja.Undefined()
	})

	webSocket, err := newWebSocketConstructor(h, vm, env.Dialer)
	if err != nil {
		return err
	}

	window, err := b.newWindow(document, alert, webSocket)
	if err != nil {
		return err
	}

	globals := []struct {
		name  string
		value goja.Value
	}{
		{"document", document},
		{"window", window},
		{"self", window},
		{"navigator", window.Get("navigator")},
		{"Element", ctor},
		{"alert", alert},
		{"WebSocket", webSocket},
		{"console", newConsole(vm)},
	}
	for _, g := range globals {
		if err := vm.Set(g.name, g.value); err != nil {
			return pkgerrors.Wrapf(err, "failed to set global %s", g.name)
		}
	}

	return nil
}

func (b *binder) wrap(e *dom.Element) goja.Value {
	if e == nil {
		return goja.Null()
	}
	if obj, ok := b.objects[e]; ok {
		return obj
	}
	obj := b.vm.NewObject()
	_ = obj.SetPrototype(b.proto)
	b.objects[e] = obj
	b.nodes[obj] = e
	return obj
}

func (b *binder) unwrap(v goja.Value) *dom.Element {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	return b.nodes[obj]
}

func (b *binder) wrapAll(list []*dom.Element) goja.Value {
	items := make([]interface{}, len(list))
	for i, e := range list {
		items[i] = b.wrap(e)
	}
	return b.vm.NewArray(items...)
}

func (b *binder) fn(f func(call goja.FunctionCall) goja.Value) goja.Value {
	return b.vm.ToValue(f)
}

// method builds a prototype method bound to the receiving element. Called on
// anything that is not an element it returns undefined.
func (b *binder) method(f func(e *dom.Element, call goja.FunctionCall) goja.Value) goja.Value {
	return b.fn(func(call goja.FunctionCall) goja.Value {
		e := b.unwrap(call.This)
		if e == nil {
			return goja.Undefined()
		}
		return f(e, call)
	})
}

type accessor struct {
	get func(e *dom.Element) goja.Value
	set func(e *dom.Element, v goja.Value)
}

func (b *binder) defineElementPrototype() error {
	vm := b.vm
	str := func(s string) goja.Value { return vm.ToValue(s) }

	accessors := map[string]accessor{
		"tagName":  {get: func(e *dom.Element) goja.Value { return str(e.TagName()) }},
		"nodeName": {get: func(e *dom.Element) goja.Value { return str(e.TagName()) }},
		"nodeType": {get: func(e *dom.Element) goja.Value { return vm.ToValue(dom.ElementNodeType) }},
		"id": {
			get: func(e *dom.Element) goja.Value { return str(e.ID()) },
			set: func(e *dom.Element, v goja.Value) { e.SetAttribute("id", v.String()) },
		},
		"className": {
			get: func(e *dom.Element) goja.Value { return str(strings.Join(e.ClassList(), " ")) },
			set: func(e *dom.Element, v goja.Value) { e.SetAttribute("class", v.String()) },
		},
		"classList": {get: b.classList},
		"style":     {get: b.style},
		"innerHTML": {
			get: func(e *dom.Element) goja.Value { return str(e.Text()) },
			set: func(e *dom.Element, v goja.Value) { e.SetText(v.String()) },
		},
		"textContent": {
			get: func(e *dom.Element) goja.Value { return str(e.Text()) },
			set: func(e *dom.Element, v goja.Value) { e.SetText(v.String()) },
		},
		"parentNode":    {get: func(e *dom.Element) goja.Value { return b.wrap(e.Parent()) }},
		"parentElement": {get: func(e *dom.Element) goja.Value { return b.wrap(e.Parent()) }},
		"children":      {get: func(e *dom.Element) goja.Value { return b.wrapAll(e.Children()) }},
		"childNodes":    {get: func(e *dom.Element) goja.Value { return b.wrapAll(e.Children()) }},
		"firstChild": {get: func(e *dom.Element) goja.Value {
			if c := e.Children(); len(c) > 0 {
				return b.wrap(c[0])
			}
			return goja.Null()
		}},
		"width": {
			get: func(e *dom.Element) goja.Value { return vm.ToValue(e.BoundingClientRect().Width) },
			set: func(e *dom.Element, v goja.Value) { e.SetAttribute("width", v.String()) },
		},
		"height": {
			get: func(e *dom.Element) goja.Value { return vm.ToValue(e.BoundingClientRect().Height) },
			set: func(e *dom.Element, v goja.Value) { e.SetAttribute("height", v.String()) },
		},
	}

	methods := map[string]goja.Value{
		"appendChild": b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
			return b.wrap(e.AppendChild(b.unwrap(call.Argument(0))))
		}),
		"removeChild": b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
			child := b.unwrap(call.Argument(0))
			if !e.RemoveChild(child) {
				panic(vm.NewGoError(pkgerrors.New("NotFoundError: node is not a child")))
			}
			return b.wrap(child)
		}),
		"insertBefore": b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
			return b.wrap(e.InsertBefore(b.unwrap(call.Argument(0)), b.unwrap(call.Argument(1))))
		}),
		"remove": b.method(func(e *dom.Element, _ goja.FunctionCall) goja.Value {
			e.Remove()
			return goja.Undefined()
		}),
		"setAttribute": b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
			e.SetAttribute(call.Argument(0).String(), call.Argument(1).String())
			return goja.Undefined()
		}),
		"getAttribute": b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
			if v, ok := e.GetAttribute(call.Argument(0).String()); ok {
				return str(v)
			}
			return goja.Null()
		}),
		"removeAttribute": b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
			e.RemoveAttribute(call.Argument(0).String())
			return goja.Undefined()
		}),
		"hasAttribute": b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
			return vm.ToValue(e.HasAttribute(call.Argument(0).String()))
		}),
		"getAttributeNames": b.method(func(e *dom.Element, _ goja.FunctionCall) goja.Value {
			names := e.AttributeNames()
			items := make([]interface{}, len(names))
			for i, n := range names {
				items[i] = n
			}
			return vm.NewArray(items...)
		}),
		"addEventListener": b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
			e.Listeners().Add(call.Argument(0).String(), call.Argument(1), b.sameFunc)
			return goja.Undefined()
		}),
		"removeEventListener": b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
			e.Listeners().Remove(call.Argument(0).String(), call.Argument(1), b.sameFunc)
			return goja.Undefined()
		}),
		"dispatchEvent": b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
			b.dispatch(call.This, e.Listeners(), call.Argument(0))
			return vm.ToValue(true)
		}),
		"getBoundingClientRect": b.method(func(e *dom.Element, _ goja.FunctionCall) goja.Value {
			r := e.BoundingClientRect()
			obj := vm.NewObject()
			for k, v := range map[string]float64{
				"x": r.X, "y": r.Y, "left": r.X, "top": r.Y,
				"width": r.Width, "height": r.Height,
				"right": r.X + r.Width, "bottom": r.Y + r.Height,
			} {
				_ = obj.Set(k, v)
			}
			return obj
		}),
		// No rendering backend exists; libraries treat null as "no WebGL".
		"getContext": b.method(func(*dom.Element, goja.FunctionCall) goja.Value { return goja.Null() }),
		"querySelector": b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
			return b.wrap(e.QuerySelector(call.Argument(0).String()))
		}),
		"querySelectorAll": b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
			return b.wrapAll(e.QuerySelectorAll(call.Argument(0).String()))
		}),
		"focus": b.method(func(*dom.Element, goja.FunctionCall) goja.Value { return goja.Undefined() }),
		"blur":  b.method(func(*dom.Element, goja.FunctionCall) goja.Value { return goja.Undefined() }),
		"click": b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
			ev := vm.NewObject()
			_ = ev.Set("type", "click")
			b.dispatch(call.This, e.Listeners(), ev)
			return goja.Undefined()
		}),
	}

	for _, name := range dom.ElementMembers {
		if a, ok := accessors[name]; ok {
			getter := b.method(func(e *dom.Element, _ goja.FunctionCall) goja.Value { return a.get(e) })
			var setter goja.Value
			if a.set != nil {
				set := a.set
				setter = b.method(func(e *dom.Element, call goja.FunctionCall) goja.Value {
					set(e, call.Argument(0))
					return goja.Undefined()
				})
			}
			if err := b.proto.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
				return pkgerrors.Wrapf(err, "failed to define Element.prototype.%s", name)
			}
			continue
		}
		m, ok := methods[name]
		if !ok {
			return pkgerrors.Errorf("no binding for element member %s", name)
		}
		if err := b.proto.DefineDataProperty(name, m, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			return pkgerrors.Wrapf(err, "failed to define Element.prototype.%s", name)
		}
	}

	return nil
}

// style returns a live view of the element's inline style.
func (b *binder) style(e *dom.Element) goja.Value {
	if obj, ok := b.styles[e]; ok {
		return obj
	}
	obj := b.vm.NewDynamicObject(&styleObject{vm: b.vm, style: e.Style()})
	b.styles[e] = obj
	return obj
}

func (b *binder) classList(e *dom.Element) goja.Value {
	if obj, ok := b.classes[e]; ok {
		return obj
	}
	vm := b.vm
	names := func(call goja.FunctionCall) []string {
		out := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			out[i] = a.String()
		}
		return out
	}
	obj := vm.NewObject()
	_ = obj.Set("add", func(call goja.FunctionCall) goja.Value {
		e.AddClass(names(call)...)
		return goja.Undefined()
	})
	_ = obj.Set("remove", func(call goja.FunctionCall) goja.Value {
		e.RemoveClass(names(call)...)
		return goja.Undefined()
	})
	_ = obj.Set("contains", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(e.HasClass(call.Argument(0).String()))
	})
	_ = obj.Set("toggle", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		if e.HasClass(name) {
			e.RemoveClass(name)
			return vm.ToValue(false)
		}
		e.AddClass(name)
		return vm.ToValue(true)
	})
	_ = obj.DefineAccessorProperty("length", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(len(e.ClassList()))
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	b.classes[e] = obj
	return obj
}

// dispatch calls every listener registered for event.type with event as the
// only argument and this bound to target.
func (b *binder) dispatch(target goja.Value, listeners *dom.Listeners, event goja.Value) {
	obj, ok := event.(*goja.Object)
	if !ok {
		return
	}
	typ := obj.Get("type")
	if typ == nil || goja.IsUndefined(typ) {
		return
	}
	if t := obj.Get("target"); t == nil || goja.IsUndefined(t) {
		_ = obj.Set("target", target)
	}
	for _, l := range listeners.For(typ.String()) {
		callListener(b.vm, target, l, event)
	}
}

func callListener(vm *goja.Runtime, this goja.Value, l dom.Listener, event goja.Value) {
	v, ok := l.(goja.Value)
	if !ok {
		return
	}
	if fn, ok := goja.AssertFunction(v); ok {
		if _, err := fn(this, event); err != nil {
			logrusFor("dom").WithError(AsRejection(err)).Warn("event listener threw")
		}
		return
	}
	// EventListener objects with a handleEvent method.
	if obj, ok := v.(*goja.Object); ok {
		if fn, ok := goja.AssertFunction(obj.Get("handleEvent")); ok {
			if _, err := fn(obj, event); err != nil {
				logrusFor("dom").WithError(AsRejection(err)).Warn("event listener threw")
			}
		}
	}
}

func (b *binder) newDocument() (*goja.Object, error) {
	vm := b.vm
	doc := b.env.Document
	obj := vm.NewObject()

	props := map[string]interface{}{
		"nodeType":        9,
		"readyState":      doc.ReadyState(),
		"documentElement": b.wrap(doc.DocumentElement()),
		"head":            b.wrap(doc.Head()),
		"body":            b.wrap(doc.Body()),
		"createElement": func(call goja.FunctionCall) goja.Value {
			return b.wrap(doc.CreateElement(call.Argument(0).String()))
		},
		"createElementNS": func(call goja.FunctionCall) goja.Value {
			return b.wrap(doc.CreateElement(call.Argument(1).String()))
		},
		"createTextNode": func(call goja.FunctionCall) goja.Value {
			return b.wrap(doc.CreateTextNode(call.Argument(0).String()))
		},
		"getElementById": func(call goja.FunctionCall) goja.Value {
			return b.wrap(doc.GetElementByID(call.Argument(0).String()))
		},
		"getElementsByTagName": func(call goja.FunctionCall) goja.Value {
			return b.wrapAll(doc.GetElementsByTagName(call.Argument(0).String()))
		},
		"querySelector": func(call goja.FunctionCall) goja.Value {
			return b.wrap(doc.QuerySelector(call.Argument(0).String()))
		},
		"querySelectorAll": func(call goja.FunctionCall) goja.Value {
			return b.wrapAll(doc.QuerySelectorAll(call.Argument(0).String()))
		},
		"addEventListener": func(call goja.FunctionCall) goja.Value {
			doc.Listeners().Add(call.Argument(0).String(), call.Argument(1), b.sameFunc)
			return goja.Undefined()
		},
		"removeEventListener": func(call goja.FunctionCall) goja.Value {
			doc.Listeners().Remove(call.Argument(0).String(), call.Argument(1), b.sameFunc)
			return goja.Undefined()
		},
	}
	for k, v := range props {
		if err := obj.Set(k, v); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to set document.%s", k)
		}
	}
	_ = obj.Set("dispatchEvent", func(call goja.FunctionCall) goja.Value {
		b.dispatch(obj, doc.Listeners(), call.Argument(0))
		return vm.ToValue(true)
	})

	return obj, nil
}

func (b *binder) newWindow(document *goja.Object, alert, webSocket goja.Value) (*goja.Object, error) {
	vm := b.vm
	win := b.env.Window
	obj := vm.NewObject()

	navigator := vm.NewObject()
	_ = navigator.Set("userAgent", win.UserAgent)
	_ = navigator.Set("platform", "lkgcal")
	_ = navigator.Set("language", "en-US")

	location := vm.NewObject()
	for k, v := range map[string]string{
		"href":     win.Location.Href,
		"protocol": win.Location.Protocol,
		"host":     win.Location.Host,
		"hostname": win.Location.Hostname,
		"pathname": win.Location.Pathname,
		"origin":   win.Location.Origin,
		"search":   "",
		"hash":     "",
	} {
		_ = location.Set(k, v)
	}

	setTimeout, _ := goja.AssertFunction(vm.Get("setTimeout"))
	clearTimeout, _ := goja.AssertFunction(vm.Get("clearTimeout"))

	props := map[string]interface{}{
		"document":         document,
		"navigator":        navigator,
		"location":         location,
		"innerWidth":       win.InnerWidth,
		"innerHeight":      win.InnerHeight,
		"devicePixelRatio": win.DevicePixelRatio,
		"alert":            alert,
		"WebSocket":        webSocket,
		"setTimeout":       vm.Get("setTimeout"),
		"clearTimeout":     vm.Get("clearTimeout"),
		"setInterval":      vm.Get("setInterval"),
		"clearInterval":    vm.Get("clearInterval"),
		"addEventListener": func(call goja.FunctionCall) goja.Value {
			win.Listeners().Add(call.Argument(0).String(), call.Argument(1), b.sameFunc)
			return goja.Undefined()
		},
		"removeEventListener": func(call goja.FunctionCall) goja.Value {
			win.Listeners().Remove(call.Argument(0).String(), call.Argument(1), b.sameFunc)
			return goja.Undefined()
		},
		"requestAnimationFrame": func(call goja.FunctionCall) goja.Value {
			if setTimeout == nil {
				return goja.Undefined()
			}
			cb := call.Argument(0)
			fn, ok := goja.AssertFunction(cb)
			if !ok {
				panic(vm.NewTypeError("requestAnimationFrame callback is not a function"))
			}
			tick := vm.ToValue(func(goja.FunctionCall) goja.Value {
				_, _ = fn(goja.Undefined(), vm.ToValue(float64(0)))
				return goja.Undefined()
			})
			id, err := setTimeout(goja.Undefined(), tick, vm.ToValue(16))
			if err != nil {
				panic(err)
			}
			return id
		},
		"cancelAnimationFrame": func(call goja.FunctionCall) goja.Value {
			if clearTimeout != nil {
				_, _ = clearTimeout(goja.Undefined(), call.Argument(0))
			}
			return goja.Undefined()
		},
	}
	for k, v := range props {
		if err := obj.Set(k, v); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to set window.%s", k)
		}
	}
	_ = obj.Set("dispatchEvent", func(call goja.FunctionCall) goja.Value {
		b.dispatch(obj, win.Listeners(), call.Argument(0))
		return vm.ToValue(true)
	})
	_ = obj.Set("window", obj)
	_ = obj.Set("self", obj)

	return obj, nil
}

func newConsole(vm *goja.Runtime) *goja.Object {
	log := logrusFor("script")
	obj := vm.NewObject()
	levels := map[string]logrus.Level{
		"log":   logrus.InfoLevel,
		"info":  logrus.InfoLevel,
		"debug": logrus.DebugLevel,
		"trace": logrus.TraceLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
	}
	for name, level := range levels {
		level := level
		_ = obj.Set(name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			log.Log(level, strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	return obj
}

// styleObject backs element.style with the element's Go style map.
type styleObject struct {
	vm    *goja.Runtime
	style map[string]string
}

func (s *styleObject) Get(key string) goja.Value {
	if v, ok := s.style[key]; ok {
		return s.vm.ToValue(v)
	}
	// Unset properties read as empty strings in browsers.
	return s.vm.ToValue("")
}

func (s *styleObject) Set(key string, val goja.Value) bool {
	s.style[key] = val.String()
	return true
}

func (s *styleObject) Has(key string) bool {
	_, ok := s.style[key]
	return ok
}

func (s *styleObject) Delete(key string) bool {
	delete(s.style, key)
	return true
}

func (s *styleObject) Keys() []string {
	keys := make([]string, 0, len(s.style))
	for k := range s.style {
		keys = append(keys, k)
	}
	return keys
}
