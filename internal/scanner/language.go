package scanner

import (
	"strings"
)

// languageMap maps file extensions to the languages the scanner picks up.
// Rockspecs and .luacheckrc are Lua syntax but never hold application code.
var languageMap = map[string]string{
	".lua": "lua",
}

// DetectLanguage returns the language for a given file extension.
// Returns empty string if the extension is not recognized.
func DetectLanguage(ext string) string {
	if lang, ok := languageMap[strings.ToLower(ext)]; ok {
		return lang
	}
	return ""
}

// IsLua reports whether path names a Lua source file.
func IsLua(path string) bool {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return false
	}
	return DetectLanguage(path[i:]) == "lua"
}
