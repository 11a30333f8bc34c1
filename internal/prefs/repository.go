// Package prefs is the typed preference store. Values are JSON encoded in a
// key-value backend and every successful write is announced to subscribers.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/apkextract/internal/naming"
	"github.com/blackwell-systems/apkextract/internal/notify"
)

// ErrInvalidPreferenceKey is the panic value of SetAppType for keys that do
// not name an application type.
var ErrInvalidPreferenceKey = errors.New("invalid preference key")

// ErrUnknownKey is returned by the raw accessors for unknown keys.
var ErrUnknownKey = errors.New("unknown preference key")

// Backend persists raw preference values.
type Backend interface {
	GetPreference(key string) (string, bool, error)
	SetPreference(key, value string) error
	DeletePreference(key string) error
}

// Change announces that the value under Key was written.
type Change struct {
	Key string
}

// Repository exposes typed accessors with defaults over a Backend.
type Repository struct {
	backend Backend
	log     zerolog.Logger
	changes notify.Broadcaster[Change]

	// mu serializes read-modify-write updates.
	mu sync.Mutex
}

// New creates a Repository.
func New(backend Backend, log zerolog.Logger) *Repository {
	return &Repository{backend: backend, log: log}
}

// Subscribe returns a channel receiving the most recent change.
func (r *Repository) Subscribe() (<-chan Change, func()) {
	return r.changes.Subscribe()
}

// Close closes all subscriber channels.
func (r *Repository) Close() {
	r.changes.Close()
}

// load decodes the value stored under key into dst. It reports false when
// the key is missing or unreadable, leaving dst untouched.
func (r *Repository) load(key string, dst any) bool {
	raw, ok, err := r.backend.GetPreference(key)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("failed to read preference, using default")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("malformed preference value, using default")
		return false
	}
	return true
}

func (r *Repository) store(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode preference %s: %w", key, err)
	}
	if err := r.backend.SetPreference(key, string(data)); err != nil {
		return fmt.Errorf("failed to save preference %s: %w", key, err)
	}
	r.changes.Publish(Change{Key: key})
	return nil
}

func (r *Repository) remove(key string) error {
	if err := r.backend.DeletePreference(key); err != nil {
		return fmt.Errorf("failed to remove preference %s: %w", key, err)
	}
	r.changes.Publish(Change{Key: key})
	return nil
}

func (r *Repository) getBool(key string, def bool) bool {
	v := def
	r.load(key, &v)
	return v
}

func (r *Repository) getString(key string, def string) string {
	v := def
	r.load(key, &v)
	return v
}

func (r *Repository) getOptionalString(key string) *string {
	var v string
	if !r.load(key, &v) {
		return nil
	}
	return &v
}

func (r *Repository) getSet(key string, def []string) []string {
	var v []string
	if !r.load(key, &v) {
		v = def
	}
	out := append([]string(nil), v...)
	sort.Strings(out)
	return out
}

// setOf normalizes a slice into a sorted set without duplicates.
func setOf(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// SaveDir returns the export destination tree URI, if one was chosen.
func (r *Repository) SaveDir() (string, bool) {
	p := r.getOptionalString(KeySaveDir)
	if p == nil {
		return "", false
	}
	return *p, true
}

func (r *Repository) SetSaveDir(uri string) error { return r.store(KeySaveDir, uri) }

func (r *Repository) CheckUpdateOnStart() bool { return r.getBool(KeyCheckUpdateOnStart, true) }

func (r *Repository) UpdatedSystemApps() bool { return r.getBool(KeyUpdatedSystemApps, false) }

func (r *Repository) SystemApps() bool { return r.getBool(KeySystemApps, false) }

func (r *Repository) UserApps() bool { return r.getBool(KeyUserApps, true) }

// SetAppType toggles one of the application-type selections. Any key other
// than the three type keys is a programming error and panics with
// ErrInvalidPreferenceKey.
func (r *Repository) SetAppType(key string, on bool) error {
	switch key {
	case KeyUpdatedSystemApps, KeySystemApps, KeyUserApps:
		return r.store(key, on)
	default:
		panic(fmt.Errorf("%w: %s", ErrInvalidPreferenceKey, key))
	}
}

// SortOrder returns the application sort key (0 name, 1 package name,
// 2 install time, 3 update time).
func (r *Repository) SortOrder() int {
	v := 0
	r.load(KeyAppSort, &v)
	return v
}

func (r *Repository) SetSortOrder(key int) error {
	if key < 0 || key > 3 {
		return fmt.Errorf("invalid sort key %d", key)
	}
	return r.store(KeyAppSort, key)
}

func (r *Repository) SortFavorites() bool { return r.getBool(KeySortFavorites, true) }

func (r *Repository) SetSortFavorites(on bool) error { return r.store(KeySortFavorites, on) }

func (r *Repository) SortAscending() bool { return r.getBool(KeyAppSortAsc, true) }

func (r *Repository) SetSortAscending(on bool) error { return r.store(KeyAppSortAsc, on) }

// Favorites returns the favorite package names in sorted order.
func (r *Repository) Favorites() []string { return r.getSet(KeyFavorites, nil) }

func (r *Repository) SetFavorites(names []string) error { return r.store(KeyFavorites, setOf(names)) }

// EditFavorites adds or removes one package from the favorites set.
func (r *Repository) EditFavorites(name string, favorite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.Favorites()
	next := make([]string, 0, len(current)+1)
	for _, n := range current {
		if n != name {
			next = append(next, n)
		}
	}
	if favorite {
		next = append(next, name)
	}
	return r.SetFavorites(next)
}

// FilterInstaller returns the installer filter, nil when unset.
func (r *Repository) FilterInstaller() *string { return r.getOptionalString(KeyFilterInstaller) }

// SetFilterInstaller sets the installer filter. An empty value removes it.
func (r *Repository) SetFilterInstaller(installer string) error {
	if installer == "" {
		return r.remove(KeyFilterInstaller)
	}
	return r.store(KeyFilterInstaller, installer)
}

// FilterCategory returns the category filter, nil when unset.
func (r *Repository) FilterCategory() *string { return r.getOptionalString(KeyFilterCategory) }

// SetFilterCategory sets the category filter. An empty value removes it.
func (r *Repository) SetFilterCategory(category string) error {
	if category == "" {
		return r.remove(KeyFilterCategory)
	}
	return r.store(KeyFilterCategory, category)
}

func (r *Repository) FilterOthers() []string { return r.getSet(KeyFilterOthers, nil) }

func (r *Repository) SetFilterOthers(values []string) error {
	return r.store(KeyFilterOthers, setOf(values))
}

func (r *Repository) SwipeRight() string { return r.getString(KeySwipeRight, ActionSaveAPK) }

func (r *Repository) SetSwipeRight(action string) error { return r.store(KeySwipeRight, action) }

func (r *Repository) SwipeLeft() string { return r.getString(KeySwipeLeft, ActionShareAPK) }

func (r *Repository) SetSwipeLeft(action string) error { return r.store(KeySwipeLeft, action) }

func (r *Repository) SwipeCustomThreshold() bool { return r.getBool(KeySwipeCustomThreshold, false) }

func (r *Repository) SwipeThresholdModifier() float64 {
	v := 32.0
	r.load(KeySwipeThresholdModifier, &v)
	return v
}

func (r *Repository) AutoBackupList() []string { return r.getSet(KeyAutoBackupList, nil) }

func (r *Repository) SetAutoBackupList(names []string) error {
	return r.store(KeyAutoBackupList, setOf(names))
}

// AppSaveName returns the persisted file name template entries.
func (r *Repository) AppSaveName() []string {
	return r.getSet(KeyAppSaveName, naming.DefaultEncoded)
}

// SetAppSaveName validates and stores a file name template.
func (r *Repository) SetAppSaveName(entries []string) error {
	t, err := naming.Parse(entries)
	if err != nil {
		return fmt.Errorf("invalid save name template: %w", err)
	}
	return r.store(KeyAppSaveName, t.Encode())
}

// SaveNameTemplate returns the decoded file name template.
func (r *Repository) SaveNameTemplate() naming.Template {
	return naming.ParseOrDefault(r.AppSaveName())
}

func (r *Repository) APKSort() string { return r.getString(KeyAPKSort, APKSortSizeDesc) }

func (r *Repository) SetAPKSort(order string) error {
	switch order {
	case APKSortSizeDesc, APKSortSizeAsc, APKSortName, APKSortLastModified:
		return r.store(KeyAPKSort, order)
	default:
		return fmt.Errorf("invalid apk sort order %q", order)
	}
}

func (r *Repository) AutoBackupService() bool { return r.getBool(KeyAutoBackupService, false) }

func (r *Repository) MaterialYou() bool { return r.getBool(KeyMaterialYou, true) }

func (r *Repository) NightMode() string { return r.getString(KeyNightMode, NightModeSystem) }

// kind describes how a raw CLI value is parsed for a key.
type kind int

const (
	kindBool kind = iota
	kindInt
	kindFloat
	kindString
	kindOptionalString
	kindSet
)

var kinds = map[string]kind{
	KeySaveDir:                kindString,
	KeyCheckUpdateOnStart:     kindBool,
	KeyUpdatedSystemApps:      kindBool,
	KeySystemApps:             kindBool,
	KeyUserApps:               kindBool,
	KeyAppSort:                kindInt,
	KeySortFavorites:          kindBool,
	KeyAppSortAsc:             kindBool,
	KeyFavorites:              kindSet,
	KeyFilterInstaller:        kindOptionalString,
	KeyFilterCategory:         kindOptionalString,
	KeyFilterOthers:           kindSet,
	KeySwipeRight:             kindString,
	KeySwipeLeft:              kindString,
	KeySwipeCustomThreshold:   kindBool,
	KeySwipeThresholdModifier: kindFloat,
	KeyAutoBackupList:         kindSet,
	KeyAppSaveName:            kindSet,
	KeyAPKSort:                kindString,
	KeyAutoBackupService:      kindBool,
	KeyMaterialYou:            kindBool,
	KeyNightMode:              kindString,
}

// Get returns the effective value of key formatted for display.
func (r *Repository) Get(key string) (string, error) {
	switch key {
	case KeySaveDir:
		v, _ := r.SaveDir()
		return v, nil
	case KeyCheckUpdateOnStart:
		return strconv.FormatBool(r.CheckUpdateOnStart()), nil
	case KeyUpdatedSystemApps:
		return strconv.FormatBool(r.UpdatedSystemApps()), nil
	case KeySystemApps:
		return strconv.FormatBool(r.SystemApps()), nil
	case KeyUserApps:
		return strconv.FormatBool(r.UserApps()), nil
	case KeyAppSort:
		return strconv.Itoa(r.SortOrder()), nil
	case KeySortFavorites:
		return strconv.FormatBool(r.SortFavorites()), nil
	case KeyAppSortAsc:
		return strconv.FormatBool(r.SortAscending()), nil
	case KeyFavorites:
		return strings.Join(r.Favorites(), ","), nil
	case KeyFilterInstaller:
		return deref(r.FilterInstaller()), nil
	case KeyFilterCategory:
		return deref(r.FilterCategory()), nil
	case KeyFilterOthers:
		return strings.Join(r.FilterOthers(), ","), nil
	case KeySwipeRight:
		return r.SwipeRight(), nil
	case KeySwipeLeft:
		return r.SwipeLeft(), nil
	case KeySwipeCustomThreshold:
		return strconv.FormatBool(r.SwipeCustomThreshold()), nil
	case KeySwipeThresholdModifier:
		return strconv.FormatFloat(r.SwipeThresholdModifier(), 'g', -1, 64), nil
	case KeyAutoBackupList:
		return strings.Join(r.AutoBackupList(), ","), nil
	case KeyAppSaveName:
		return strings.Join(r.AppSaveName(), ","), nil
	case KeyAPKSort:
		return r.APKSort(), nil
	case KeyAutoBackupService:
		return strconv.FormatBool(r.AutoBackupService()), nil
	case KeyMaterialYou:
		return strconv.FormatBool(r.MaterialYou()), nil
	case KeyNightMode:
		return r.NightMode(), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Set parses raw according to the key's type and stores it. Sets are
// comma separated.
func (r *Repository) Set(key, raw string) error {
	k, ok := kinds[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	switch key {
	case KeyUpdatedSystemApps, KeySystemApps, KeyUserApps:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean %q: %w", raw, err)
		}
		return r.SetAppType(key, b)
	case KeyAppSort:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid sort key %q: %w", raw, err)
		}
		return r.SetSortOrder(n)
	case KeyAppSaveName:
		return r.SetAppSaveName(splitSet(raw))
	case KeyAPKSort:
		return r.SetAPKSort(raw)
	case KeyFilterInstaller:
		return r.SetFilterInstaller(raw)
	case KeyFilterCategory:
		return r.SetFilterCategory(raw)
	}

	switch k {
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean %q: %w", raw, err)
		}
		return r.store(key, b)
	case kindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", raw, err)
		}
		return r.store(key, f)
	case kindSet:
		return r.store(key, setOf(splitSet(raw)))
	default:
		return r.store(key, raw)
	}
}

func splitSet(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
