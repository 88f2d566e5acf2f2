package textutil

import "strings"

var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	" ", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"#", "",
	"%", "",
)

// SanitizeObjectName makes a file name safe to use in a storage key or URL
// path segment. Returns "file" when nothing usable remains.
func SanitizeObjectName(name string) string {
	name = strings.TrimSpace(Normalize(name))
	out := strings.Trim(fileNameReplacer.Replace(name), "-.")
	if out == "" {
		return "file"
	}
	return out
}
