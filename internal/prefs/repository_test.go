package prefs

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/apkextract/internal/naming"
	"github.com/blackwell-systems/apkextract/internal/store"
)

func newTestRepository(t *testing.T) (*Repository, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.CreateSchema())
	t.Cleanup(func() { st.Close() })
	return New(st, zerolog.Nop()), st
}

func TestDefaults(t *testing.T) {
	r, _ := newTestRepository(t)

	_, ok := r.SaveDir()
	assert.False(t, ok)
	assert.True(t, r.CheckUpdateOnStart())
	assert.False(t, r.UpdatedSystemApps())
	assert.False(t, r.SystemApps())
	assert.True(t, r.UserApps())
	assert.Equal(t, 0, r.SortOrder())
	assert.True(t, r.SortFavorites())
	assert.True(t, r.SortAscending())
	assert.Empty(t, r.Favorites())
	assert.Nil(t, r.FilterInstaller())
	assert.Nil(t, r.FilterCategory())
	assert.Empty(t, r.FilterOthers())
	assert.Equal(t, ActionSaveAPK, r.SwipeRight())
	assert.Equal(t, ActionShareAPK, r.SwipeLeft())
	assert.False(t, r.SwipeCustomThreshold())
	assert.Equal(t, 32.0, r.SwipeThresholdModifier())
	assert.Empty(t, r.AutoBackupList())
	assert.Equal(t, []string{"0:name"}, r.AppSaveName())
	assert.Equal(t, naming.Default, r.SaveNameTemplate())
	assert.Equal(t, APKSortSizeDesc, r.APKSort())
	assert.False(t, r.AutoBackupService())
	assert.True(t, r.MaterialYou())
	assert.Equal(t, "0", r.NightMode())
}

func TestSetAppType(t *testing.T) {
	r, _ := newTestRepository(t)

	require.NoError(t, r.SetAppType(KeyUpdatedSystemApps, true))
	require.NoError(t, r.SetAppType(KeySystemApps, true))
	require.NoError(t, r.SetAppType(KeyUserApps, false))

	assert.True(t, r.UpdatedSystemApps())
	assert.True(t, r.SystemApps())
	assert.False(t, r.UserApps())
}

func TestSetAppType_PanicsOnUnknownKey(t *testing.T) {
	r, _ := newTestRepository(t)

	defer func() {
		rec := recover()
		require.NotNil(t, rec, "SetAppType should panic on unknown key")
		err, ok := rec.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrInvalidPreferenceKey))
	}()
	_ = r.SetAppType(KeyAppSort, true)
}

func TestEditFavorites(t *testing.T) {
	r, _ := newTestRepository(t)

	require.NoError(t, r.EditFavorites("com.b", true))
	require.NoError(t, r.EditFavorites("com.a", true))
	require.NoError(t, r.EditFavorites("com.a", true))
	assert.Equal(t, []string{"com.a", "com.b"}, r.Favorites())

	require.NoError(t, r.EditFavorites("com.b", false))
	assert.Equal(t, []string{"com.a"}, r.Favorites())
}

func TestFilterEmptyRemovesKey(t *testing.T) {
	r, st := newTestRepository(t)

	require.NoError(t, r.SetFilterInstaller("com.android.vending"))
	require.NotNil(t, r.FilterInstaller())
	assert.Equal(t, "com.android.vending", *r.FilterInstaller())

	require.NoError(t, r.SetFilterInstaller(""))
	assert.Nil(t, r.FilterInstaller())
	_, ok, err := st.GetPreference(KeyFilterInstaller)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SetFilterCategory("game"))
	assert.Equal(t, "game", *r.FilterCategory())
	require.NoError(t, r.SetFilterCategory(""))
	assert.Nil(t, r.FilterCategory())
}

func TestSetSortOrder_Validates(t *testing.T) {
	r, _ := newTestRepository(t)
	require.NoError(t, r.SetSortOrder(3))
	assert.Equal(t, 3, r.SortOrder())
	assert.Error(t, r.SetSortOrder(4))
	assert.Equal(t, 3, r.SortOrder())
}

func TestSetAppSaveName(t *testing.T) {
	r, _ := newTestRepository(t)

	require.NoError(t, r.SetAppSaveName([]string{"1:versionCode", "0:name"}))
	assert.Equal(t, "Foo_3", r.SaveNameTemplate().Apply(testPackage()))

	assert.Error(t, r.SetAppSaveName([]string{"0:versionCode"}))
}

func TestSubscribe(t *testing.T) {
	r, _ := newTestRepository(t)
	ch, cancel := r.Subscribe()
	defer cancel()

	require.NoError(t, r.SetSortAscending(false))

	select {
	case c := <-ch:
		assert.Equal(t, KeyAppSortAsc, c.Key)
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
}

func TestRawGetSet(t *testing.T) {
	r, _ := newTestRepository(t)

	tests := []struct {
		key  string
		raw  string
		want string
	}{
		{KeyUserApps, "false", "false"},
		{KeyAppSort, "2", "2"},
		{KeyFavorites, "com.b, com.a,com.b", "com.a,com.b"},
		{KeyFilterOthers, "launcher", "launcher"},
		{KeySwipeThresholdModifier, "12.5", "12.5"},
		{KeyAppSaveName, "0:name,1:packageName", "0:name,1:packageName"},
		{KeyAPKSort, APKSortName, APKSortName},
		{KeyNightMode, "2", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			require.NoError(t, r.Set(tt.key, tt.raw))
			got, err := r.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, errors.Is(r.Set("nope", "1"), ErrUnknownKey))
	_, err := r.Get("nope")
	assert.True(t, errors.Is(err, ErrUnknownKey))
	assert.Error(t, r.Set(KeyUserApps, "maybe"))
	assert.Error(t, r.Set(KeyAPKSort, "random"))
}

type failingBackend struct{}

func (failingBackend) GetPreference(string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}
func (failingBackend) SetPreference(string, string) error { return errors.New("disk on fire") }
func (failingBackend) DeletePreference(string) error      { return errors.New("disk on fire") }

func TestBackendFailure(t *testing.T) {
	r := New(failingBackend{}, zerolog.Nop())

	assert.True(t, r.UserApps(), "read failures fall back to defaults")
	assert.Equal(t, []string{"0:name"}, r.AppSaveName())
	assert.Error(t, r.SetSortFavorites(false))
}

func TestMalformedValueFallsBack(t *testing.T) {
	r, st := newTestRepository(t)
	require.NoError(t, st.SetPreference(KeyUserApps, "not json"))
	assert.True(t, r.UserApps())
}

func TestNightModeDescription(t *testing.T) {
	desc := Keys[KeyNightMode]
	assert.Contains(t, desc, "1 dark")
	assert.Contains(t, desc, "2 light")
	assert.Contains(t, desc, "0 system")

	r, _ := newTestRepository(t)
	assert.Equal(t, NightModeSystem, r.NightMode())
	require.NoError(t, r.Set(KeyNightMode, NightModeDark))
	assert.Equal(t, "1", r.NightMode())
}
