package dom

import "strings"

// Document is the root of the mock tree: <html><head/><body/></html>.
type Document struct {
	root      *Element
	head      *Element
	body      *Element
	listeners *Listeners
}

func NewDocument() *Document {
	root := newElement("html")
	head := root.AppendChild(newElement("head"))
	body := root.AppendChild(newElement("body"))
	return &Document{
		root:      root,
		head:      head,
		body:      body,
		listeners: NewListeners(),
	}
}

// CreateElement returns a new detached element.
func (d *Document) CreateElement(tag string) *Element {
	return newElement(tag)
}

// CreateTextNode returns a detached #text node.
func (d *Document) CreateTextNode(text string) *Element {
	n := newElement("")
	n.tagName = "#text"
	n.text = text
	return n
}

func (d *Document) DocumentElement() *Element { return d.root }
func (d *Document) Head() *Element            { return d.head }
func (d *Document) Body() *Element            { return d.body }
func (d *Document) Listeners() *Listeners     { return d.listeners }

// ReadyState is always "complete": scripts run after the document loaded.
func (d *Document) ReadyState() string { return "complete" }

func (d *Document) GetElementByID(id string) *Element {
	var found *Element
	d.root.Walk(func(n *Element) bool {
		if n.ID() == id {
			found = n
			return false
		}
		return true
	})
	return found
}

func (d *Document) GetElementsByTagName(tag string) []*Element {
	if tag == "*" {
		return d.root.QuerySelectorAll("*")
	}
	tag = strings.ToUpper(tag)
	var out []*Element
	d.root.Walk(func(n *Element) bool {
		if n.tagName == tag {
			out = append(out, n)
		}
		return true
	})
	return out
}

func (d *Document) QuerySelector(selector string) *Element {
	if compileSelector(selector)(d.root) {
		return d.root
	}
	return d.root.QuerySelector(selector)
}

func (d *Document) QuerySelectorAll(selector string) []*Element {
	out := d.root.QuerySelectorAll(selector)
	if compileSelector(selector)(d.root) {
		out = append([]*Element{d.root}, out...)
	}
	return out
}
