// Package util provides small helpers for terminal output.
package util

import (
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const ellipsis = "..."

// TruncateANSI truncates a string to maxWidth visual columns, adding "..." if truncated.
// Escape codes and wide characters are accounted for, so styled text keeps
// its styling up to the cut.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= len(ellipsis) {
		return ellipsis
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, ellipsis)
}

// TruncatePath shortens path to maxWidth columns by dropping leading
// directories, so the file name stays visible: "/very/long/dir/notes.txt"
// becomes ".../dir/notes.txt". A base name that alone is too wide is cut
// from the right.
func TruncatePath(path string, maxWidth int) string {
	if lipgloss.Width(path) <= maxWidth {
		return path
	}

	base := filepath.Base(path)
	if lipgloss.Width(base)+len(ellipsis)+1 > maxWidth {
		return TruncateANSI(base, maxWidth)
	}

	dir := filepath.Dir(path)
	tail := base
	for dir != "." && dir != string(filepath.Separator) && dir != filepath.VolumeName(dir)+string(filepath.Separator) {
		next := filepath.Join(filepath.Base(dir), tail)
		if lipgloss.Width(next)+len(ellipsis)+1 > maxWidth {
			break
		}
		tail = next
		dir = filepath.Dir(dir)
	}
	return ellipsis + string(filepath.Separator) + tail
}
