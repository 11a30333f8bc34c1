// Package output provides terminal output utilities for apkextract.
//
// This package includes:
//   - Table rendering functions for applications, archives, export runs and preferences
//   - Progress bars for long-running operations, fed from a progress tracker
//   - Spinners for indeterminate operations
//   - Human-readable formatting for sizes, dates, and other data
//
// Table rendering uses plain characters plus ANSI color codes when stdout is
// a terminal. Progress indicators are thread-safe and can be used from
// multiple goroutines.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/archives"
	"github.com/blackwell-systems/apkextract/internal/store"
)

// ANSI color codes for partition and status display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderPackageTable renders applications in the given order; the caller
// has already sorted them.
func RenderPackageTable(packages []*android.Package) string {
	if len(packages) == 0 {
		return "No applications found.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-24s %-32s %-12s %-9s %-13s %s\n",
		"Name", "Package", "Version", "Size", "Updated", "Type"))
	sb.WriteString(strings.Repeat("─", 104))
	sb.WriteString("\n")

	for _, pkg := range packages {
		name := truncate(pkg.DisplayName(), 24)
		if pkg.Favorite {
			name = truncate("★ "+pkg.DisplayName(), 24)
		}
		// Pad before coloring so escape codes don't break alignment.
		partition := fmt.Sprintf("%-14s", pkg.Partition().String())

		sb.WriteString(fmt.Sprintf("%-24s %-32s %-12s %-9s %-13s %s",
			name,
			truncate(pkg.Name, 32),
			truncate(formatVersion(pkg.VersionName), 12),
			formatSize(pkg.SizeBytes),
			formatRelativeTime(pkg.UpdatedAt),
			colorize(partitionColor(pkg.Partition()), strings.TrimSpace(partition))))
		if pkg.Selected {
			sb.WriteString(" " + colorize(colorGreen, "✓"))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderPackageSummary renders the per-partition counts of a listing.
func RenderPackageSummary(packages []*android.Package) string {
	counts := make(map[android.Partition]int)
	var selected int
	for _, p := range packages {
		counts[p.Partition()]++
		if p.Selected {
			selected++
		}
	}
	s := fmt.Sprintf("%d apps (%d user, %d system, %d updated system)",
		len(packages), counts[android.PartitionUser], counts[android.PartitionSystem], counts[android.PartitionUpdatedSystem])
	if selected > 0 {
		s += fmt.Sprintf(", %d selected", selected)
	}
	return s + "\n"
}

func partitionColor(p android.Partition) string {
	switch p {
	case android.PartitionUpdatedSystem:
		return colorYellow
	case android.PartitionSystem:
		return colorGray
	default:
		return colorGreen
	}
}

// RenderArchiveTable renders archive records from the save directory.
func RenderArchiveTable(records []*archives.Record) string {
	if len(records) == 0 {
		return "No archives found.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-36s %-9s %-13s %-32s %s\n",
		"File", "Size", "Modified", "Package", "Version"))
	sb.WriteString(strings.Repeat("─", 100))
	sb.WriteString("\n")

	for _, r := range records {
		pkg, version := "unknown", ""
		if r.PackageName != nil {
			pkg = *r.PackageName
		}
		if r.VersionName != nil {
			version = formatVersion(*r.VersionName)
		}
		if r.VersionCode != nil {
			version = strings.TrimSpace(fmt.Sprintf("%s (%d)", version, *r.VersionCode))
		}

		sb.WriteString(fmt.Sprintf("%-36s %-9s %-13s %-32s %s\n",
			truncate(r.FileName, 36),
			formatSize(r.Size),
			formatRelativeTime(r.LastModified),
			truncate(pkg, 32),
			version))
	}

	return sb.String()
}

// RenderExportRunTable renders export history, newest first.
func RenderExportRunTable(runs []*store.ExportRun) string {
	if len(runs) == 0 {
		return "No export runs recorded.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-6s %-8s %-20s %-7s %s\n",
		"ID", "Kind", "Started", "Items", "Status"))
	sb.WriteString(strings.Repeat("─", 60))
	sb.WriteString("\n")

	for _, run := range runs {
		status := colorize(colorGreen, "ok")
		switch {
		case run.FinishedAt.IsZero():
			status = colorize(colorYellow, "running")
		case run.Error != "":
			status = colorize(colorRed, "failed: "+truncate(run.Error, 40))
		}

		sb.WriteString(fmt.Sprintf("%-6d %-8s %-20s %-7d %s\n",
			run.ID,
			run.Kind,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Total,
			status))
	}

	return sb.String()
}

// RenderPreferenceTable renders preference key/value pairs sorted by key,
// with a description when one is known.
func RenderPreferenceTable(values map[string]string, descriptions map[string]string) string {
	if len(values) == 0 {
		return "No preferences.\n"
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-34s %-24s %s\n", "Key", "Value", "Description"))
	sb.WriteString(strings.Repeat("─", 90))
	sb.WriteString("\n")

	for _, k := range keys {
		v := values[k]
		if v == "" {
			v = colorize(colorGray, "(unset)")
		}
		sb.WriteString(fmt.Sprintf("%-34s %-24s %s\n", k, truncate(v, 24), descriptions[k]))
	}

	return sb.String()
}

// formatSize formats bytes into human-readable size. Unknown sizes are
// negative.
func formatSize(bytes int64) string {
	if bytes < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

func formatVersion(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

// formatRelativeTime formats a timestamp as relative time.
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	case diff < 30*24*time.Hour:
		weeks := int(diff.Hours() / 24 / 7)
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	case diff < 365*24*time.Hour:
		months := int(diff.Hours() / 24 / 30)
		if months == 1 {
			return "1 month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	default:
		years := int(diff.Hours() / 24 / 365)
		if years == 1 {
			return "1 year ago"
		}
		return fmt.Sprintf("%d years ago", years)
	}
}

// truncate shortens s to maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
