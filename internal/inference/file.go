package inference

import "strings"

var allowedExtensions = map[string]bool{
	"jpg": true,
	"png": true,
}

// fileExtension returns the substring after the final dot. A name with no
// dot, a trailing dot, or an empty name has no extension.
func fileExtension(name string) (string, bool) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return "", false
	}
	return name[idx+1:], true
}

func extensionAllowed(name string) bool {
	ext, ok := fileExtension(name)
	if !ok {
		return false
	}
	return allowedExtensions[strings.ToLower(ext)]
}
