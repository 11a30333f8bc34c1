package output

import (
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/archives"
	"github.com/blackwell-systems/apkextract/internal/store"
)

func TestRenderPackageTable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	now := time.Now()

	tests := []struct {
		name     string
		packages []*android.Package
		contains []string
	}{
		{
			name:     "empty packages",
			packages: []*android.Package{},
			contains: []string{"No applications found"},
		},
		{
			name: "single user app",
			packages: []*android.Package{
				{
					Name:        "com.example.maps",
					Label:       "Maps",
					VersionName: "11.2",
					SizeBytes:   2147483648,
					UpdatedAt:   now.Add(-24 * time.Hour),
				},
			},
			contains: []string{"Maps", "com.example.maps", "11.2", "2.0 GiB", "1 day ago", "user"},
		},
		{
			name: "partitions and markers",
			packages: []*android.Package{
				{Name: "com.android.camera", Flags: android.FlagSystem | android.FlagUpdatedSystem, SizeBytes: -1, Favorite: true},
				{Name: "com.android.shell", Flags: android.FlagSystem, SizeBytes: 1048576, Selected: true},
			},
			contains: []string{"★ com.android.camera", "updated-system", "system", "1.0 MiB", "✓", "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RenderPackageTable(tt.packages)

			for _, expected := range tt.contains {
				if !strings.Contains(result, expected) {
					t.Errorf("RenderPackageTable() missing expected string %q\nGot:\n%s", expected, result)
				}
			}
		})
	}
}

func TestRenderPackageTable_KeepsOrder(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	result := RenderPackageTable([]*android.Package{
		{Name: "com.z", Label: "Zed"},
		{Name: "com.a", Label: "Alpha"},
	})
	if strings.Index(result, "Zed") > strings.Index(result, "Alpha") {
		t.Errorf("RenderPackageTable() reordered rows:\n%s", result)
	}
}

func TestRenderPackageSummary(t *testing.T) {
	got := RenderPackageSummary([]*android.Package{
		{Name: "a"},
		{Name: "b", Selected: true},
		{Name: "c", Flags: android.FlagSystem},
		{Name: "d", Flags: android.FlagSystem | android.FlagUpdatedSystem},
	})
	want := "4 apps (2 user, 1 system, 1 updated system), 1 selected\n"
	if got != want {
		t.Errorf("RenderPackageSummary() = %q, want %q", got, want)
	}
}

func TestRenderArchiveTable(t *testing.T) {
	pkg, version, code := "com.example.maps", "11.2", int64(1120)

	result := RenderArchiveTable([]*archives.Record{
		{FileName: "Maps_com.example.maps_1120.apk", Size: 5 << 20, LastModified: time.Now().Add(-2 * time.Hour),
			PackageName: &pkg, VersionName: &version, VersionCode: &code},
		{FileName: "copied-by-hand.apk", Size: 512},
	})

	for _, expected := range []string{"Maps_com.example.maps_1120.apk", "5.0 MiB", "2 hours ago", "11.2 (1120)",
		"copied-by-hand.apk", "512 B", "unknown"} {
		if !strings.Contains(result, expected) {
			t.Errorf("RenderArchiveTable() missing expected string %q\nGot:\n%s", expected, result)
		}
	}

	if got := RenderArchiveTable(nil); !strings.Contains(got, "No archives found") {
		t.Errorf("RenderArchiveTable(nil) = %q", got)
	}
}

func TestRenderExportRunTable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	started := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	result := RenderExportRunTable([]*store.ExportRun{
		{ID: 2, Kind: "save", StartedAt: started, FinishedAt: started.Add(time.Second), Total: 3, Error: "Maps: source archive not found"},
		{ID: 1, Kind: "share", StartedAt: started, Total: 1},
	})

	for _, expected := range []string{"2026-03-01 10:30:00", "failed: Maps: source archive not found", "running", "share"} {
		if !strings.Contains(result, expected) {
			t.Errorf("RenderExportRunTable() missing expected string %q\nGot:\n%s", expected, result)
		}
	}
}

func TestRenderPreferenceTable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	result := RenderPreferenceTable(
		map[string]string{"sort_order": "0", "app_filter_installer": ""},
		map[string]string{"sort_order": "application sort key"},
	)

	if strings.Index(result, "app_filter_installer") > strings.Index(result, "sort_order") {
		t.Errorf("RenderPreferenceTable() keys not sorted:\n%s", result)
	}
	for _, expected := range []string{"(unset)", "application sort key"} {
		if !strings.Contains(result, expected) {
			t.Errorf("RenderPreferenceTable() missing expected string %q\nGot:\n%s", expected, result)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"unknown", -1, "-"},
		{"bytes", 512, "512 B"},
		{"kibibytes", 1536, "1.5 KiB"},
		{"mebibytes", 1048576, "1.0 MiB"},
		{"mebibytes rounded", 10485760, "10 MiB"},
		{"gibibytes", 2147483648, "2.0 GiB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatSize(tt.bytes)
			if got != tt.want {
				t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		time time.Time
		want string
	}{
		{"zero time", time.Time{}, "unknown"},
		{"just now", now.Add(-30 * time.Second), "just now"},
		{"one minute ago", now.Add(-1 * time.Minute), "1 minute ago"},
		{"minutes ago", now.Add(-45 * time.Minute), "45 minutes ago"},
		{"one hour ago", now.Add(-1 * time.Hour), "1 hour ago"},
		{"one day ago", now.Add(-24 * time.Hour), "1 day ago"},
		{"days ago", now.Add(-5 * 24 * time.Hour), "5 days ago"},
		{"weeks ago", now.Add(-14 * 24 * time.Hour), "2 weeks ago"},
		{"months ago", now.Add(-90 * 24 * time.Hour), "3 months ago"},
		{"years ago", now.Add(-730 * 24 * time.Hour), "2 years ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatRelativeTime(tt.time)
			if got != tt.want {
				t.Errorf("formatRelativeTime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"shorter than max", "hello", 10, "hello"},
		{"equal to max", "hello", 5, "hello"},
		{"longer than max", "hello world", 8, "hello..."},
		{"max of 3", "hello", 3, "hel"},
		{"multibyte", "★ Kamera-App", 6, "★ K..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

// Visual test - prints actual table output for manual verification
func TestVisualPackageTable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping visual test in short mode")
	}

	now := time.Now()
	packages := []*android.Package{
		{Name: "com.example.maps", Label: "Maps", VersionName: "11.2", SizeBytes: 52428800, UpdatedAt: now.Add(-3 * 24 * time.Hour), Favorite: true},
		{Name: "com.android.camera2", Label: "Camera", VersionName: "2.0.002", SizeBytes: 933281792, UpdatedAt: now.Add(-89 * 24 * time.Hour), Flags: android.FlagSystem | android.FlagUpdatedSystem},
		{Name: "com.android.shell", SizeBytes: -1, Flags: android.FlagSystem},
	}

	t.Log("\n" + RenderPackageTable(packages))
}
