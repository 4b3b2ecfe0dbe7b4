package assets

import (
	"embed"
	"io/fs"
)

//go:embed static
var static embed.FS

// Embedded holds the built-in templates (svgs/) and backgrounds
// (backgrounds/).
var Embedded fs.FS = mustSub(static, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
