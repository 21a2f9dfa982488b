package models

import "embed"

// FS contains the meshes the renderer can draw. It makes it possible to
// generate a binary and just copy it to another machine.
//
//go:embed triangle.obj
var FS embed.FS

// Triangle is the name of the default mesh in FS.
const Triangle = "triangle.obj"
