package naming

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/apkextract/internal/android"
)

func TestApply(t *testing.T) {
	pkg := &android.Package{Name: "com.x", Label: "Foo", VersionCode: 3, VersionName: "1.2"}

	tests := []struct {
		name    string
		entries []string
		want    string
	}{
		{"default", []string{"0:name"}, "Foo"},
		{"name package code", []string{"0:name", "1:packageName", "2:versionCode"}, "Foo_com.x_3"},
		{"unordered input", []string{"2:versionCode", "0:name", "1:packageName"}, "Foo_com.x_3"},
		{"package and version name", []string{"0:packageName", "1:versionName"}, "com.x_1.2"},
		{"legacy package tag", []string{"0:package"}, "com.x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Parse(tt.entries)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tmpl.Apply(pkg))
		})
	}
}

func TestParse_RequiresIdentity(t *testing.T) {
	_, err := Parse([]string{"0:versionCode", "1:versionName"})
	assert.True(t, errors.Is(err, ErrNoIdentity))

	_, err = Parse(nil)
	assert.True(t, errors.Is(err, ErrNoIdentity))
}

func TestParse_Invalid(t *testing.T) {
	for _, entries := range [][]string{
		{"name"},
		{"x:name"},
		{"0:icon"},
		{"0:name", "1:name"},
	} {
		_, err := Parse(entries)
		assert.Error(t, err, "entries %v", entries)
	}
}

func TestParseOrDefault(t *testing.T) {
	assert.Equal(t, Default, ParseOrDefault(nil))
	assert.Equal(t, Default, ParseOrDefault([]string{"0:versionCode"}))
}

func TestEncode(t *testing.T) {
	tmpl, err := Parse([]string{"5:versionCode", "2:name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"0:name", "1:versionCode"}, tmpl.Encode())
}

func TestApply_SanitizesAndFallsBack(t *testing.T) {
	pkg := &android.Package{Name: "com.y", Label: "A/B: C"}
	assert.Equal(t, "A_B_ C", Default.Apply(pkg))

	unnamed := &android.Package{Name: "com.z"}
	assert.Equal(t, "com.z", Default.Apply(unnamed))
}
