package prefs

import "github.com/blackwell-systems/apkextract/internal/android"

func testPackage() *android.Package {
	return &android.Package{Name: "com.foo", Label: "Foo", VersionCode: 3, VersionName: "1.0"}
}
