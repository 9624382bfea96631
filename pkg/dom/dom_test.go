package dom

import (
	"reflect"
	"testing"
)

func TestDocumentTree(t *testing.T) {
	doc := NewDocument()
	if doc.DocumentElement().TagName() != "HTML" {
		t.Fatalf("root = %s", doc.DocumentElement().TagName())
	}
	if doc.Body().Parent() != doc.DocumentElement() {
		t.Fatal("body should be attached to the root")
	}

	canvas := doc.CreateElement("canvas")
	canvas.SetAttribute("id", "holoplay")
	canvas.AddClass("fullscreen", "hidden")
	if canvas.Parent() != nil {
		t.Fatal("created elements should be detached")
	}
	if doc.GetElementByID("holoplay") != nil {
		t.Fatal("detached elements should not be found")
	}

	doc.Body().AppendChild(canvas)
	if doc.GetElementByID("holoplay") != canvas {
		t.Fatal("getElementById did not find the canvas")
	}
	if got := doc.QuerySelector(".hidden"); got != canvas {
		t.Fatalf("QuerySelector(.hidden) = %v", got)
	}
	if got := doc.GetElementsByTagName("canvas"); len(got) != 1 {
		t.Fatalf("GetElementsByTagName(canvas) = %d elements", len(got))
	}

	canvas.RemoveClass("hidden")
	if canvas.HasClass("hidden") || !canvas.HasClass("fullscreen") {
		t.Fatalf("classes = %v", canvas.ClassList())
	}

	canvas.Remove()
	if len(doc.Body().Children()) != 0 {
		t.Fatal("canvas should have been removed")
	}
}

func TestInsertBeforeAndReparent(t *testing.T) {
	doc := NewDocument()
	a, b, c := doc.CreateElement("a"), doc.CreateElement("b"), doc.CreateElement("c")
	body := doc.Body()
	body.AppendChild(a)
	body.AppendChild(c)
	body.InsertBefore(b, c)

	var tags []string
	for _, n := range body.Children() {
		tags = append(tags, n.TagName())
	}
	if !reflect.DeepEqual(tags, []string{"A", "B", "C"}) {
		t.Fatalf("children = %v", tags)
	}

	doc.Head().AppendChild(b)
	if b.Parent() != doc.Head() || len(body.Children()) != 2 {
		t.Fatal("appending to a new parent should detach from the old one")
	}
	if body.RemoveChild(b) {
		t.Fatal("RemoveChild of a foreign node should report false")
	}
}

func TestAttributes(t *testing.T) {
	e := NewDocument().CreateElement("div")
	e.SetAttribute("Width", "640px")
	e.SetAttribute("height", "480")
	e.SetAttribute("width", "800")
	if !reflect.DeepEqual(e.AttributeNames(), []string{"width", "height"}) {
		t.Fatalf("AttributeNames() = %v", e.AttributeNames())
	}
	if r := e.BoundingClientRect(); r.Width != 800 || r.Height != 480 {
		t.Fatalf("BoundingClientRect() = %+v", r)
	}
	e.RemoveAttribute("WIDTH")
	if e.HasAttribute("width") {
		t.Fatal("width should have been removed")
	}
}

func TestBoundingClientRectDimensions(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"1536", 1536},
		{"1536.5", 1536},
		{"640px", 640},
		{" 300 ", 300},
		{"1e3", 1000},
		{"-5", 0},
		{"auto", 0},
		{"", 0},
	}
	for _, tt := range tests {
		e := NewDocument().CreateElement("canvas")
		e.SetAttribute("width", tt.value)
		if got := e.BoundingClientRect().Width; got != tt.want {
			t.Errorf("width %q: BoundingClientRect().Width = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestListeners(t *testing.T) {
	l := NewListeners()
	same := func(a, b Listener) bool { return a == b }
	l.Add("message", "f1", same)
	l.Add("message", "f1", same)
	l.Add("message", "f2", same)
	if l.Count("message") != 2 {
		t.Fatalf("Count() = %d, want 2", l.Count("message"))
	}
	l.Remove("message", "f1", same)
	if got := l.For("message"); len(got) != 1 || got[0] != "f2" {
		t.Fatalf("For() = %v", got)
	}
}
