package svgdoc

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const template = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" viewBox="0 0 1920 1080">
  <image x="0" y="0" width="1920" height="1080" xlink:href="efhk.jpg"/>
  <image x="0" y="0" width="10" height="10" href="logo.png"/>
  <image x="0" y="0" width="10" height="10"/>
  <text id="callsign" x="10" y="20">Placeholder</text>
  <text id="candidate" x="10" y="40"><tspan>Old</tspan> name</text>
</svg>`

func TestParseMalformed(t *testing.T) {
	for _, in := range []string{"", "not xml at all <", `<html><body/></html>`} {
		if _, err := Parse([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) err = %v, want ErrMalformed", in, err)
		}
	}
}

func TestParseNestedSVG(t *testing.T) {
	d, err := Parse([]byte(`<div><svg viewBox="0 0 5 5"><text id="a">x</text></svg></div>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := d.Text("a"); got != "x" {
		t.Fatalf("Text = %q", got)
	}
}

func TestSetText(t *testing.T) {
	d, err := Parse([]byte(template))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !d.SetText("candidate", "Anna") {
		t.Fatalf("candidate slot not found")
	}
	if got := d.Text("candidate"); got != "Anna" {
		t.Fatalf("candidate = %q, want Anna", got)
	}
	if d.SetText("missing", "x") {
		t.Fatalf("SetText on missing id reported true")
	}
	if d.Text("missing") != "" || d.Attr("missing", "style") != "" || d.SetAttr("missing", "style", "x") {
		t.Fatalf("missing id should be a no-op")
	}
}

func TestSetAttrAndSerialize(t *testing.T) {
	d, _ := Parse([]byte(template))
	d.SetAttr("callsign", "style", "font-size: 46px;")
	b, err := d.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	again, err := Parse(b)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if got := again.Attr("callsign", "style"); got != "font-size: 46px;" {
		t.Fatalf("style = %q", got)
	}
	if !strings.Contains(string(b), "Placeholder") {
		t.Fatalf("serialized output lost text: %s", b)
	}
}

func TestImages(t *testing.T) {
	d, _ := Parse([]byte(template))
	imgs := d.Images()
	var hrefs []string
	for _, img := range imgs {
		hrefs = append(hrefs, img.Href)
	}
	if diff := cmp.Diff([]string{"efhk.jpg", "logo.png"}, hrefs); diff != "" {
		t.Fatalf("hrefs (-want +got):\n%s", diff)
	}

	imgs[0].Rewrite("blob:x")
	b, _ := d.Serialize()
	if !strings.Contains(string(b), `xlink:href="blob:x"`) {
		t.Fatalf("rewrite not serialized: %s", b)
	}
}

func TestViewBox(t *testing.T) {
	tests := []struct {
		raw     string
		want    ViewBox
		wantErr bool
	}{
		{raw: "0 0 1920 1080", want: ViewBox{Width: 1920, Height: 1080}},
		{raw: "-10,5, 800 ,600", want: ViewBox{MinX: -10, MinY: 5, Width: 800, Height: 600}},
		{raw: "0 0 1920", wantErr: true},
		{raw: "0 0 a b", wantErr: true},
		{raw: "0 0 0 100", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseViewBox(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrNoViewBox) {
				t.Errorf("ParseViewBox(%q) err = %v, want ErrNoViewBox", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseViewBox(%q): %v", tt.raw, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseViewBox(%q) (-want +got):\n%s", tt.raw, diff)
		}
	}

	d, _ := Parse([]byte(`<svg width="10" height="10"/>`))
	if _, err := d.ViewBox(); !errors.Is(err, ErrNoViewBox) {
		t.Fatalf("err = %v, want ErrNoViewBox", err)
	}
	w, h := ViewBox{Width: 799.6, Height: 480}.Size()
	if w != 800 || h != 480 {
		t.Fatalf("Size = %dx%d", w, h)
	}
}
