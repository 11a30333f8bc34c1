package prefs

// Preference keys.
const (
	KeySaveDir                = "dir"
	KeyCheckUpdateOnStart     = "check_update_on_start"
	KeyUpdatedSystemApps      = "updated_system_apps"
	KeySystemApps             = "system_apps"
	KeyUserApps               = "user_apps"
	KeyAppSort                = "app_sort"
	KeySortFavorites          = "sort_favorites"
	KeyAppSortAsc             = "app_sort_asc"
	KeyFavorites              = "favorites"
	KeyFilterInstaller        = "filter_installer"
	KeyFilterCategory         = "filter_category"
	KeyFilterOthers           = "filter_others"
	KeySwipeRight             = "list_preference_swipe_actions_right"
	KeySwipeLeft              = "list_preference_swipe_actions_left"
	KeySwipeCustomThreshold   = "swipe_action_custom_threshold"
	KeySwipeThresholdModifier = "swipe_action_threshold_modifier"
	KeyAutoBackupList         = "app_list_auto_backup"
	KeyAppSaveName            = "app_save_name"
	KeyAPKSort                = "apk_sort"
	KeyAutoBackupService      = "auto_backup"
	KeyMaterialYou            = "use_material_you"
	KeyNightMode              = "list_preference_ui_mode"
)

// APK list sort orders.
const (
	APKSortSizeDesc     = "file_size_desc"
	APKSortSizeAsc      = "file_size_asc"
	APKSortName         = "file_name"
	APKSortLastModified = "last_modified"
)

// Night mode values.
const (
	NightModeSystem = "0"
	NightModeDark   = "1"
	NightModeLight  = "2"
)

// Swipe action values.
const (
	ActionSaveAPK  = "save_apk"
	ActionShareAPK = "share_apk"
)

// Keys lists every known key with a short description, for the CLI.
var Keys = map[string]string{
	KeySaveDir:                "export destination tree URI",
	KeyCheckUpdateOnStart:     "check for updates on start (bool)",
	KeyUpdatedSystemApps:      "show updated system apps (bool)",
	KeySystemApps:             "show system apps, needs updated_system_apps (bool)",
	KeyUserApps:               "show user apps (bool)",
	KeyAppSort:                "sort key: 0 name, 1 package, 2 install time, 3 update time",
	KeySortFavorites:          "list favorites first (bool)",
	KeyAppSortAsc:             "ascending sort (bool)",
	KeyFavorites:              "favorite package names (set)",
	KeyFilterInstaller:        "installer package filter, empty clears",
	KeyFilterCategory:         "category filter, empty clears",
	KeyFilterOthers:           "other filters: launcher, no_launcher, enabled, disabled (set)",
	KeySwipeRight:             "right swipe action",
	KeySwipeLeft:              "left swipe action",
	KeySwipeCustomThreshold:   "use custom swipe threshold (bool)",
	KeySwipeThresholdModifier: "swipe threshold modifier (number)",
	KeyAutoBackupList:         "packages backed up automatically on update (set)",
	KeyAppSaveName:            "file name template entries, e.g. 0:name (set)",
	KeyAPKSort:                "archive list sort: file_size_desc, file_size_asc, file_name, last_modified",
	KeyAutoBackupService:      "run the auto backup watcher (bool)",
	KeyMaterialYou:            "dynamic colors (bool)",
	KeyNightMode:              "night mode: " + NightModeSystem + " system, " + NightModeDark + " dark, " + NightModeLight + " light",
}
