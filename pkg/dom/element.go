package dom

import (
	"math"
	"slices"
	"strconv"
	"strings"
)

// ElementMembers is the set of members hosted scripts may probe for on any
// element. jshost exposes each of them on Element.prototype.
var ElementMembers = []string{
	"tagName",
	"nodeName",
	"nodeType",
	"id",
	"className",
	"classList",
	"style",
	"innerHTML",
	"textContent",
	"parentNode",
	"parentElement",
	"children",
	"childNodes",
	"firstChild",
	"width",
	"height",
	"appendChild",
	"removeChild",
	"insertBefore",
	"remove",
	"setAttribute",
	"getAttribute",
	"removeAttribute",
	"hasAttribute",
	"getAttributeNames",
	"addEventListener",
	"removeEventListener",
	"dispatchEvent",
	"getBoundingClientRect",
	"getContext",
	"querySelector",
	"querySelectorAll",
	"focus",
	"blur",
	"click",
}

// ElementNodeType is the DOM nodeType of elements.
const ElementNodeType = 1

// Rect is what getBoundingClientRect reports.
type Rect struct {
	X, Y, Width, Height float64
}

// Element is a detached-or-attached node in the mock tree.
type Element struct {
	tagName    string
	attributes map[string]string
	attrOrder  []string
	style      map[string]string
	children   []*Element
	parent     *Element
	text       string
	listeners  *Listeners
}

func newElement(tag string) *Element {
	return &Element{
		tagName:    strings.ToUpper(tag),
		attributes: make(map[string]string),
		style:      make(map[string]string),
		listeners:  NewListeners(),
	}
}

func (e *Element) TagName() string { return e.tagName }

func (e *Element) SetAttribute(name, value string) {
	name = strings.ToLower(name)
	if _, ok := e.attributes[name]; !ok {
		e.attrOrder = append(e.attrOrder, name)
	}
	e.attributes[name] = value
}

func (e *Element) GetAttribute(name string) (string, bool) {
	v, ok := e.attributes[strings.ToLower(name)]
	return v, ok
}

func (e *Element) HasAttribute(name string) bool {
	_, ok := e.attributes[strings.ToLower(name)]
	return ok
}

func (e *Element) RemoveAttribute(name string) {
	name = strings.ToLower(name)
	if _, ok := e.attributes[name]; !ok {
		return
	}
	delete(e.attributes, name)
	e.attrOrder = slices.DeleteFunc(e.attrOrder, func(s string) bool { return s == name })
}

// AttributeNames returns attribute names in insertion order.
func (e *Element) AttributeNames() []string {
	return append([]string(nil), e.attrOrder...)
}

func (e *Element) ID() string {
	v, _ := e.GetAttribute("id")
	return v
}

func (e *Element) ClassList() []string {
	v, _ := e.GetAttribute("class")
	return strings.Fields(v)
}

func (e *Element) HasClass(name string) bool {
	return slices.Contains(e.ClassList(), name)
}

func (e *Element) AddClass(names ...string) {
	classes := e.ClassList()
	for _, n := range names {
		if !slices.Contains(classes, n) {
			classes = append(classes, n)
		}
	}
	e.SetAttribute("class", strings.Join(classes, " "))
}

func (e *Element) RemoveClass(names ...string) {
	classes := slices.DeleteFunc(e.ClassList(), func(c string) bool {
		return slices.Contains(names, c)
	})
	e.SetAttribute("class", strings.Join(classes, " "))
}

// Style returns the inline style map. Callers may mutate it.
func (e *Element) Style() map[string]string { return e.style }

func (e *Element) Text() string { return e.text }

func (e *Element) SetText(s string) {
	e.text = s
	e.children = nil
}

func (e *Element) Parent() *Element { return e.parent }

func (e *Element) Children() []*Element {
	return append([]*Element(nil), e.children...)
}

func (e *Element) Listeners() *Listeners { return e.listeners }

// AppendChild moves child under e, detaching it from any previous parent.
func (e *Element) AppendChild(child *Element) *Element {
	if child == nil || child == e {
		return child
	}
	child.Remove()
	child.parent = e
	e.children = append(e.children, child)
	return child
}

// InsertBefore inserts child before ref. A nil or foreign ref appends.
func (e *Element) InsertBefore(child, ref *Element) *Element {
	if child == nil || child == e {
		return child
	}
	child.Remove()
	idx := slices.Index(e.children, ref)
	if ref == nil || idx < 0 {
		child.parent = e
		e.children = append(e.children, child)
		return child
	}
	child.parent = e
	e.children = slices.Insert(e.children, idx, child)
	return child
}

// RemoveChild detaches child. It returns false if child is not a child of e.
func (e *Element) RemoveChild(child *Element) bool {
	idx := slices.Index(e.children, child)
	if idx < 0 {
		return false
	}
	e.children = slices.Delete(e.children, idx, idx+1)
	child.parent = nil
	return true
}

// Remove detaches e from its parent, if any.
func (e *Element) Remove() {
	if e.parent != nil {
		e.parent.RemoveChild(e)
	}
}

// BoundingClientRect reports the size from the width/height attributes.
// There is no layout, so position is always zero.
func (e *Element) BoundingClientRect() Rect {
	return Rect{Width: e.dimension("width"), Height: e.dimension("height")}
}

func (e *Element) dimension(name string) float64 {
	v, ok := e.GetAttribute(name)
	if !ok {
		return 0
	}
	// width and height are unsigned longs on canvas elements.
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "px"), 64)
	if err != nil || math.IsNaN(f) || f < 0 {
		return 0
	}
	return math.Trunc(f)
}

// Walk visits e and its descendants depth-first until fn returns false.
func (e *Element) Walk(fn func(*Element) bool) bool {
	if !fn(e) {
		return false
	}
	for _, c := range e.children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// QuerySelectorAll supports the simple selectors libraries use when looking
// for their own nodes: "tag", "#id" and ".class".
func (e *Element) QuerySelectorAll(selector string) []*Element {
	match := compileSelector(selector)
	var out []*Element
	for _, c := range e.children {
		c.Walk(func(n *Element) bool {
			if match(n) {
				out = append(out, n)
			}
			return true
		})
	}
	return out
}

func (e *Element) QuerySelector(selector string) *Element {
	if all := e.QuerySelectorAll(selector); len(all) > 0 {
		return all[0]
	}
	return nil
}

func compileSelector(selector string) func(*Element) bool {
	selector = strings.TrimSpace(selector)
	switch {
	case selector == "":
		return func(*Element) bool { return false }
	case selector == "*":
		return func(*Element) bool { return true }
	case strings.HasPrefix(selector, "#"):
		id := selector[1:]
		return func(n *Element) bool { return n.ID() == id }
	case strings.HasPrefix(selector, "."):
		class := selector[1:]
		return func(n *Element) bool { return n.HasClass(class) }
	default:
		tag := strings.ToUpper(selector)
		return func(n *Element) bool { return n.tagName == tag }
	}
}
