package updater

import "runtime"

// CurrentPlatform returns the platform name of the running binary using the
// update sites' naming (linux64, macosx, win32, ...).
func CurrentPlatform() string {
	return platformName(runtime.GOOS, runtime.GOARCH)
}

func platformName(goos, goarch string) string {
	bits := "64"
	switch goarch {
	case "386", "arm", "mips", "mipsle":
		bits = "32"
	}
	switch goos {
	case "linux":
		return "linux" + bits
	case "windows":
		return "win" + bits
	case "darwin":
		return "macosx"
	}
	return goos + "-" + goarch
}
