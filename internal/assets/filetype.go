package assets

import (
	"path/filepath"
	"strings"
)

// FileType classifies a file found under the asset root
type FileType int

const (
	// FileTypeAsset is any file that is neither a font nor a template
	FileTypeAsset FileType = iota
	// FileTypeFont is a font file
	FileTypeFont
	// FileTypeTemplate is a document program
	FileTypeTemplate
)

// TemplateExt is the extension of document programs
const TemplateExt = ".star"

var fontExts = map[string]bool{
	".ttf":   true,
	".otf":   true,
	".woff":  true,
	".woff2": true,
	".ttc":   true,
}

// String returns the string representation of the file type
func (t FileType) String() string {
	switch t {
	case FileTypeFont:
		return "font"
	case FileTypeTemplate:
		return "template"
	default:
		return "asset"
	}
}

// FileTypeFromPath classifies a path by its lower-cased extension
func FileTypeFromPath(path string) FileType {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case fontExts[ext]:
		return FileTypeFont
	case ext == TemplateExt:
		return FileTypeTemplate
	default:
		return FileTypeAsset
	}
}
