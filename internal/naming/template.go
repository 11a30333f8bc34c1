// Package naming builds archive file names from an ordered field template.
//
// A template is persisted as a set of "<index>:<field>" entries, for example
// {"0:name", "1:packageName", "2:versionCode"}. Applying it joins the field
// values in ascending index order with "_": Foo_com.x_3.
package naming

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/blackwell-systems/apkextract/internal/android"
)

// Field names a package attribute usable in a file name.
type Field string

const (
	FieldName        Field = "name"
	FieldPackageName Field = "packageName"
	FieldVersionCode Field = "versionCode"
	FieldVersionName Field = "versionName"
)

// aliases maps legacy encodings to their field.
var aliases = map[string]Field{
	"name":         FieldName,
	"packageName":  FieldPackageName,
	"package":      FieldPackageName,
	"versionCode":  FieldVersionCode,
	"version_code": FieldVersionCode,
	"versionName":  FieldVersionName,
	"version_name": FieldVersionName,
}

// ErrNoIdentity is returned for templates naming neither the label nor the
// package name.
var ErrNoIdentity = errors.New("template must contain name or packageName")

// Entry is one position in a template.
type Entry struct {
	Index int
	Field Field
}

// Template is an ordered list of fields.
type Template []Entry

// Default is the template used when none is configured.
var Default = Template{{Index: 0, Field: FieldName}}

// DefaultEncoded is the persisted form of Default.
var DefaultEncoded = []string{"0:name"}

// Parse decodes persisted entries, sorting them by index.
func Parse(entries []string) (Template, error) {
	t := make(Template, 0, len(entries))
	seen := make(map[Field]bool)

	for _, e := range entries {
		idxStr, name, ok := strings.Cut(e, ":")
		if !ok {
			return nil, fmt.Errorf("invalid template entry %q", e)
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			return nil, fmt.Errorf("invalid index in template entry %q: %w", e, err)
		}
		field, ok := aliases[name]
		if !ok {
			return nil, fmt.Errorf("unknown field in template entry %q", e)
		}
		if seen[field] {
			return nil, fmt.Errorf("duplicate field %s in template", field)
		}
		seen[field] = true
		t = append(t, Entry{Index: idx, Field: field})
	}

	sort.SliceStable(t, func(i, j int) bool { return t[i].Index < t[j].Index })

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// ParseOrDefault decodes entries and falls back to Default when they are
// empty or invalid.
func ParseOrDefault(entries []string) Template {
	t, err := Parse(entries)
	if err != nil {
		return Default
	}
	return t
}

// Validate checks that the template identifies the application.
func (t Template) Validate() error {
	for _, e := range t {
		if e.Field == FieldName || e.Field == FieldPackageName {
			return nil
		}
	}
	return ErrNoIdentity
}

// Encode returns the persisted form, renumbering indices from zero.
func (t Template) Encode() []string {
	out := make([]string, len(t))
	for i, e := range t {
		out[i] = fmt.Sprintf("%d:%s", i, e.Field)
	}
	return out
}

// Apply builds the base file name (without extension) for pkg.
func (t Template) Apply(pkg *android.Package) string {
	parts := make([]string, 0, len(t))
	for _, e := range t {
		var v string
		switch e.Field {
		case FieldName:
			v = pkg.DisplayName()
		case FieldPackageName:
			v = pkg.Name
		case FieldVersionCode:
			v = strconv.FormatInt(pkg.VersionCode, 10)
		case FieldVersionName:
			v = pkg.VersionName
		}
		if v != "" {
			parts = append(parts, sanitize(v))
		}
	}
	if len(parts) == 0 {
		return sanitize(pkg.Name)
	}
	return strings.Join(parts, "_")
}

// sanitize replaces characters that cannot appear in a document name.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, s)
}
