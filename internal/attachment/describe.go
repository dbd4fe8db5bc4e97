package attachment

import (
	"fmt"
	"strings"
)

const inlineLimit = 8 * 1024

// Describe renders files for a model prompt. Small textual files are
// inlined; everything else is listed by name so the page can reference it
// by relative path.
func Describe(files []File) string {
	if len(files) == 0 {
		return "None"
	}
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "- %s (%s, %d bytes), available at ./%s\n", f.Name, f.ContentType, len(f.Data), f.Name)
		if f.Textual() && len(f.Data) <= inlineLimit {
			fmt.Fprintf(&b, "  content:\n%s\n", indent(string(f.Data), "    "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
