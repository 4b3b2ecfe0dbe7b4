// Package svgdoc is the editable document model for banner templates:
// load, find by id, set text and attributes, and serialize back to markup.
package svgdoc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

var (
	// ErrMalformed is returned when the markup has no <svg> element.
	ErrMalformed = errors.New("malformed template")
	// ErrNoViewBox is returned when the <svg> element declares no usable viewBox.
	ErrNoViewBox = errors.New("view-box missing")
)

// Document is a parsed template. It is not safe for concurrent mutation.
type Document struct {
	doc  *etree.Document
	root *etree.Element
}

// ViewBox is the logical coordinate rectangle of the document.
type ViewBox struct {
	MinX, MinY    float64
	Width, Height float64
}

// Image is an embedded image reference.
type Image struct {
	el   *etree.Element
	attr string
	Href string
}

func Parse(b []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		root = doc.FindElement("//svg")
	}
	if root == nil {
		return nil, fmt.Errorf("%w: no svg element", ErrMalformed)
	}
	return &Document{doc: doc, root: root}, nil
}

// Root returns the <svg> element.
func (d *Document) Root() *etree.Element { return d.root }

// ByID returns the element with the given id or nil.
func (d *Document) ByID(id string) *etree.Element {
	if id == "" || strings.ContainsAny(id, `'"]`) {
		return nil
	}
	return d.root.FindElement("//*[@id='" + id + "']")
}

// SetText replaces the content of the element with id. It reports false
// when the document has no such element.
func (d *Document) SetText(id, text string) bool {
	el := d.ByID(id)
	if el == nil {
		return false
	}
	for len(el.Child) > 0 {
		el.RemoveChildAt(0)
	}
	el.SetText(text)
	return true
}

// Text returns the text content of the element with id, including the
// text of nested elements.
func (d *Document) Text(id string) string {
	el := d.ByID(id)
	if el == nil {
		return ""
	}
	return TextContent(el)
}

// SetAttr sets an attribute on the element with id.
func (d *Document) SetAttr(id, name, value string) bool {
	el := d.ByID(id)
	if el == nil {
		return false
	}
	el.CreateAttr(name, value)
	return true
}

// Attr returns an attribute of the element with id.
func (d *Document) Attr(id, name string) string {
	el := d.ByID(id)
	if el == nil {
		return ""
	}
	return el.SelectAttrValue(name, "")
}

// Images returns every <image> that carries a link, in document order.
func (d *Document) Images() []*Image {
	var out []*Image
	for _, el := range d.root.FindElements("//image") {
		if img := imageOf(el); img != nil {
			out = append(out, img)
		}
	}
	return out
}

func imageOf(el *etree.Element) *Image {
	for _, attr := range []string{"xlink:href", "href"} {
		if v := strings.TrimSpace(el.SelectAttrValue(attr, "")); v != "" {
			return &Image{el: el, attr: attr, Href: v}
		}
	}
	return nil
}

// Rewrite points the image at ref.
func (i *Image) Rewrite(ref string) {
	i.el.CreateAttr(i.attr, ref)
	i.Href = ref
}

// Href returns the link of an <image> element.
func Href(el *etree.Element) string {
	if img := imageOf(el); img != nil {
		return img.Href
	}
	return ""
}

// ViewBox parses the viewBox attribute of the root element.
func (d *Document) ViewBox() (ViewBox, error) {
	raw := strings.TrimSpace(d.root.SelectAttrValue("viewBox", ""))
	if raw == "" {
		return ViewBox{}, ErrNoViewBox
	}
	return ParseViewBox(raw)
}

// ParseViewBox parses "min-x min-y width height", separated by spaces
// and/or commas.
func ParseViewBox(raw string) (ViewBox, error) {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(parts) != 4 {
		return ViewBox{}, fmt.Errorf("%w: %q", ErrNoViewBox, raw)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return ViewBox{}, fmt.Errorf("%w: %q", ErrNoViewBox, raw)
		}
		v[i] = f
	}
	vb := ViewBox{MinX: v[0], MinY: v[1], Width: v[2], Height: v[3]}
	if vb.Width <= 0 || vb.Height <= 0 {
		return ViewBox{}, fmt.Errorf("%w: non-positive size %q", ErrNoViewBox, raw)
	}
	return vb, nil
}

// Size returns the raster size for the view-box.
func (v ViewBox) Size() (int, int) {
	w := int(v.Width + 0.5)
	h := int(v.Height + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Serialize writes the document back to markup.
func (d *Document) Serialize() ([]byte, error) {
	b, err := d.doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("unable serialize document: %w", err)
	}
	return b, nil
}

// TextContent concatenates all character data below el.
func TextContent(el *etree.Element) string {
	var sb strings.Builder
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				sb.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(el)
	return sb.String()
}
