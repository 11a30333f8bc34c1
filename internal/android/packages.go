package android

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"
)

// dumpsysTimeLayout is the timestamp format used by `dumpsys package`.
const dumpsysTimeLayout = "2006-01-02 15:04:05"

// Client talks to the package manager of one device through adb.
type Client struct {
	serial string
	runner Runner
}

// NewClient creates a Client. An empty serial targets the only attached
// device.
func NewClient(runner Runner, serial string) *Client {
	return &Client{serial: serial, runner: runner}
}

// args prefixes adb arguments with the device selector.
func (c *Client) args(args ...string) []string {
	if c.serial == "" {
		return args
	}
	return append([]string{"-s", c.serial}, args...)
}

func (c *Client) shell(ctx context.Context, args ...string) ([]byte, error) {
	return c.runner.Output(ctx, c.args(append([]string{"shell"}, args...)...)...)
}

// ListInstalled returns every installed package with its archive path and
// partition flags. Version and timestamp details are filled by PackageInfo.
func (c *Client) ListInstalled(ctx context.Context) ([]*Package, error) {
	output, err := c.shell(ctx, "pm", "list", "packages", "-f")
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}

	system, err := c.listNames(ctx, "-s")
	if err != nil {
		return nil, fmt.Errorf("failed to list system packages: %w", err)
	}

	// Disabled packages are optional information; ignore failures.
	disabled, _ := c.listNames(ctx, "-d")

	var packages []*Package
	for _, line := range splitLines(output) {
		path, name, ok := parsePackageLine(line)
		if !ok {
			continue
		}

		pkg := &Package{
			Name:      name,
			Label:     name,
			SourceDir: path,
			Enabled:   !disabled[name],
			SizeBytes: -1,
		}
		if system[name] {
			pkg.Flags |= FlagSystem
			// System apps whose archive lives on the data partition have been
			// updated through the store.
			if strings.HasPrefix(path, "/data/") {
				pkg.Flags |= FlagUpdatedSystem
			}
		}
		packages = append(packages, pkg)
	}

	return packages, nil
}

// listNames runs `pm list packages <flag>` and returns the names as a set.
func (c *Client) listNames(ctx context.Context, flag string) (map[string]bool, error) {
	output, err := c.shell(ctx, "pm", "list", "packages", flag)
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool)
	for _, line := range splitLines(output) {
		if strings.HasPrefix(line, "package:") {
			names[strings.TrimPrefix(line, "package:")] = true
		}
	}
	return names, nil
}

// parsePackageLine parses one line of `pm list packages -f` output:
// package:/data/app/~~x/com.foo-1/base.apk=com.foo
func parsePackageLine(line string) (path, name string, ok bool) {
	if !strings.HasPrefix(line, "package:") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "package:")

	// Drop trailing attributes such as " uid:10123".
	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		line = line[:idx]
	}

	idx := strings.LastIndexByte(line, '=')
	if idx <= 0 || idx == len(line)-1 {
		return "", "", false
	}
	return line[:idx], line[idx+1:], true
}

// PackageInfo returns the detailed record for a package.
func (c *Client) PackageInfo(ctx context.Context, name string) (*Package, error) {
	pathOut, err := c.shell(ctx, "pm", "path", name)
	if err != nil || !bytes.HasPrefix(bytes.TrimSpace(pathOut), []byte("package:")) {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}

	dump, err := c.shell(ctx, "dumpsys", "package", name)
	if err != nil {
		return nil, fmt.Errorf("failed to query package %s: %w", name, err)
	}

	pkg, err := parseDumpsys(name, dump)
	if err != nil {
		return nil, err
	}
	pkg.SourceDir = strings.TrimPrefix(splitLines(pathOut)[0], "package:")

	// resolve-activity prints a component name when a launcher entry exists.
	if out, err := c.shell(ctx, "cmd", "package", "resolve-activity", "--brief",
		"-c", "android.intent.category.LAUNCHER", name); err == nil {
		lines := splitLines(out)
		if len(lines) > 0 && strings.Contains(lines[len(lines)-1], "/") {
			pkg.HasLauncher = true
		}
	}

	return pkg, nil
}

// parseDumpsys extracts package fields from `dumpsys package <name>` output.
func parseDumpsys(name string, dump []byte) (*Package, error) {
	pkg := &Package{
		Name:      name,
		Label:     name,
		Enabled:   true,
		SizeBytes: -1,
	}

	found := false
	for _, line := range splitLines(dump) {
		if strings.HasPrefix(line, "Package [") {
			// The hidden system copy of an updated app follows the active
			// one; only the first block describes the installed package.
			if found {
				break
			}
			found = strings.HasPrefix(line, "Package ["+name+"]")
			continue
		}
		if !found {
			continue
		}

		for _, field := range strings.Fields(line) {
			key, value, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			switch key {
			case "versionCode":
				if code, err := strconv.ParseInt(value, 10, 64); err == nil {
					pkg.VersionCode = code
				}
			case "versionName":
				pkg.VersionName = value
			case "installerPackageName":
				if value != "null" {
					pkg.Installer = value
				}
			case "category":
				pkg.Category = value
			case "enabled":
				// 2, 3 and 4 are the disabled states.
				if state, err := strconv.Atoi(value); err == nil && state >= 2 {
					pkg.Enabled = false
				}
			}
		}

		switch {
		case strings.HasPrefix(line, "firstInstallTime="):
			pkg.InstalledAt = parseDumpsysTime(strings.TrimPrefix(line, "firstInstallTime="))
		case strings.HasPrefix(line, "lastUpdateTime="):
			pkg.UpdatedAt = parseDumpsysTime(strings.TrimPrefix(line, "lastUpdateTime="))
		case strings.HasPrefix(line, "pkgFlags=["):
			pkg.Flags = parseFlags(line)
		}
	}

	if pkg.InstalledAt.IsZero() && pkg.VersionCode == 0 && pkg.VersionName == "" {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}
	return pkg, nil
}

func parseDumpsysTime(s string) time.Time {
	t, err := time.ParseInLocation(dumpsysTimeLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseFlags converts "pkgFlags=[ SYSTEM HAS_CODE UPDATED_SYSTEM_APP ]".
func parseFlags(line string) uint32 {
	var flags uint32
	for _, f := range strings.Fields(strings.Trim(strings.TrimPrefix(line, "pkgFlags="), "[]")) {
		switch f {
		case "SYSTEM":
			flags |= FlagSystem
		case "UPDATED_SYSTEM_APP":
			flags |= FlagUpdatedSystem
		}
	}
	return flags
}

// IsInstalled reports whether the package is currently installed.
func (c *Client) IsInstalled(ctx context.Context, name string) (bool, error) {
	output, err := c.shell(ctx, "pm", "path", name)
	if err != nil {
		// pm exits non-zero for unknown packages.
		if len(bytes.TrimSpace(output)) == 0 {
			return false, nil
		}
		return false, fmt.Errorf("failed to check package %s: %w", name, err)
	}
	return bytes.HasPrefix(bytes.TrimSpace(output), []byte("package:")), nil
}

// ArchiveSize returns the size in bytes of a file on the device.
func (c *Client) ArchiveSize(ctx context.Context, path string) (int64, error) {
	output, err := c.shell(ctx, "stat", "-c", "%s", path)
	if err != nil {
		return -1, fmt.Errorf("%w: %s", fs.ErrNotExist, path)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(string(output)), 10, 64)
	if err != nil {
		return -1, fmt.Errorf("failed to parse size of %s: %w", path, err)
	}
	return size, nil
}

// OpenArchive opens a device file for reading. A missing file yields an
// error wrapping fs.ErrNotExist.
func (c *Client) OpenArchive(ctx context.Context, path string) (io.ReadCloser, error) {
	if _, err := c.ArchiveSize(ctx, path); err != nil {
		return nil, err
	}
	return c.runner.Stream(ctx, c.args("exec-out", "cat", path)...)
}

// Uninstall removes a package for the current user.
func (c *Client) Uninstall(ctx context.Context, name string) error {
	output, err := c.shell(ctx, "pm", "uninstall", name)
	if err != nil {
		return fmt.Errorf("pm uninstall %s failed: %w", name, err)
	}
	if !bytes.Contains(output, []byte("Success")) {
		return fmt.Errorf("pm uninstall %s failed: %s", name, bytes.TrimSpace(output))
	}
	return nil
}

// Launch starts the launcher activity of a package.
func (c *Client) Launch(ctx context.Context, name string) error {
	if _, err := c.shell(ctx, "monkey", "-p", name, "-c", "android.intent.category.LAUNCHER", "1"); err != nil {
		return fmt.Errorf("failed to launch %s: %w", name, err)
	}
	return nil
}

// OpenSettings opens the system details page of a package.
func (c *Client) OpenSettings(ctx context.Context, name string) error {
	_, err := c.shell(ctx, "am", "start", "-a", "android.settings.APPLICATION_DETAILS_SETTINGS",
		"-d", "package:"+name)
	if err != nil {
		return fmt.Errorf("failed to open settings for %s: %w", name, err)
	}
	return nil
}

func splitLines(b []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
