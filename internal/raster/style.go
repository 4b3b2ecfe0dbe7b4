package raster

import (
	"image/color"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// textStyle is the subset of SVG presentation the native backend honours
// for <text>.
type textStyle struct {
	Fill     color.Color
	Size     float64
	Bold     bool
	Anchor   float64
	Hidden   bool
	Opacity  float64
	Baseline float64
}

const defaultFontSize = 16

var namedColors = map[string]color.NRGBA{
	"black":   {0, 0, 0, 255},
	"white":   {255, 255, 255, 255},
	"red":     {255, 0, 0, 255},
	"green":   {0, 128, 0, 255},
	"blue":    {0, 0, 255, 255},
	"yellow":  {255, 255, 0, 255},
	"orange":  {255, 165, 0, 255},
	"gray":    {128, 128, 128, 255},
	"grey":    {128, 128, 128, 255},
	"navy":    {0, 0, 128, 255},
	"silver":  {192, 192, 192, 255},
	"gold":    {255, 215, 0, 255},
	"skyblue": {135, 206, 235, 255},
}

// properties merges presentation attributes and style declarations of el
// and its ancestors. Nearer elements win, and within one element the
// style attribute wins over plain attributes.
func properties(el *etree.Element) map[string]string {
	props := map[string]string{}
	for e := el; e != nil; e = e.Parent() {
		own := map[string]string{}
		for _, a := range e.Attr {
			if a.Space == "" {
				own[a.Key] = a.Value
			}
		}
		for k, v := range parseStyle(own["style"]) {
			own[k] = v
		}
		for k, v := range own {
			if k == "style" || k == "x" || k == "y" || k == "id" || k == "transform" {
				continue
			}
			if _, ok := props[k]; !ok {
				props[k] = v
			}
		}
	}
	return props
}

func parseStyle(s string) map[string]string {
	out := map[string]string{}
	for _, decl := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "!important"))
		if k != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

func resolveTextStyle(el *etree.Element) textStyle {
	p := properties(el)
	st := textStyle{Fill: color.Black, Size: defaultFontSize, Opacity: 1}

	if v, ok := p["fill"]; ok {
		if c, ok := parseColor(v); ok {
			st.Fill = c
		} else if strings.TrimSpace(v) == "none" {
			st.Hidden = true
		}
	}
	if v, ok := p["font-size"]; ok {
		if f, ok := parseLength(v); ok && f > 0 {
			st.Size = f
		}
	}
	switch w := strings.TrimSpace(p["font-weight"]); w {
	case "bold", "bolder":
		st.Bold = true
	default:
		if n, err := strconv.Atoi(w); err == nil && n >= 600 {
			st.Bold = true
		}
	}
	switch strings.TrimSpace(p["text-anchor"]) {
	case "middle":
		st.Anchor = 0.5
	case "end":
		st.Anchor = 1
	}
	switch strings.TrimSpace(p["dominant-baseline"]) {
	case "middle", "central":
		st.Baseline = 0.5
	case "hanging", "text-before-edge":
		st.Baseline = 1
	}
	for _, k := range []string{"opacity", "fill-opacity"} {
		if v, ok := p[k]; ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				st.Opacity *= clamp01(f)
			}
		}
	}
	if p["display"] == "none" || p["visibility"] == "hidden" {
		st.Hidden = true
	}
	return st
}

func parseColor(s string) (color.Color, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, true
	}
	if strings.HasPrefix(s, "#") {
		hex := s[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) != 6 {
			return nil, false
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return nil, false
		}
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
	}
	if strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")") {
		parts := strings.Split(s[4:len(s)-1], ",")
		if len(parts) != 3 {
			return nil, false
		}
		var c [3]uint8
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 0 || n > 255 {
				return nil, false
			}
			c[i] = uint8(n)
		}
		return color.NRGBA{R: c[0], G: c[1], B: c[2], A: 255}, true
	}
	return nil, false
}

// parseLength reads the first number of an SVG length or coordinate list
// ("46px", "12.5", "10 20 30").
func parseLength(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " ,"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, "px")
	s = strings.TrimSuffix(s, "pt")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// translation sums the translation part of el's transform and those of
// its ancestors. Rotation and scale are not applied.
func translation(el *etree.Element) (float64, float64) {
	var tx, ty float64
	for e := el; e != nil; e = e.Parent() {
		if e.Tag == "svg" {
			break
		}
		x, y := parseTranslate(e.SelectAttrValue("transform", ""))
		tx += x
		ty += y
	}
	return tx, ty
}

func parseTranslate(s string) (float64, float64) {
	s = strings.TrimSpace(s)
	for s != "" {
		open := strings.IndexByte(s, '(')
		end := strings.IndexByte(s, ')')
		if open < 0 || end < open {
			break
		}
		name := strings.TrimSpace(s[:open])
		args := numbers(s[open+1 : end])
		s = strings.TrimSpace(s[end+1:])
		switch name {
		case "translate":
			if len(args) == 1 {
				return args[0], 0
			}
			if len(args) >= 2 {
				return args[0], args[1]
			}
		case "matrix":
			if len(args) == 6 {
				return args[4], args[5]
			}
		}
	}
	return 0, 0
}

func numbers(s string) []float64 {
	var out []float64
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' }) {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
