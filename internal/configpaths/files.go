// Package configpaths locates padproxy config files.
package configpaths

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appName = "padproxy"

// configBases are the file names (without extension) searched in every directory.
var configBases = []string{"bridge", "config"}

// DefaultConfigDir returns the per-user padproxy config directory.
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		appdata := os.Getenv("AppData")
		if appdata == "" {
			return "", errors.New("AppData not set")
		}
		return filepath.Join(appdata, appName), nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", errors.New("HOME not set")
	}
	return filepath.Join(home, ".config", appName), nil
}

// DefaultNamedConfigPath returns <config dir>/<baseName>.<ext> for a format name
// (json, yaml, yml or toml). Unknown formats map to json.
func DefaultNamedConfigPath(baseName, format string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, baseName+"."+canonicalExt(format)), nil
}

// EnsureDir creates the parent directory of filePath.
func EnsureDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0o755)
}

func canonicalExt(format string) string {
	switch format {
	case "yaml", "yml":
		return "yaml"
	case "toml":
		return "toml"
	default:
		return "json"
	}
}

// searchDirs lists the directories probed for config files, highest priority first.
func searchDirs() []string {
	var dirs []string
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if dir, err := DefaultConfigDir(); err == nil {
		dirs = append(dirs, dir)
	}
	if runtime.GOOS != "windows" {
		dirs = append(dirs, filepath.Join("/etc", appName))
	}
	return dirs
}

// ConfigCandidatePaths returns the config files to try, split per loader.
// A non-empty userPath comes first in the list matching its extension;
// paths without a known extension are treated as JSON.
func ConfigCandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	route := func(p string) {
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			yamlPaths = append(yamlPaths, p)
		case ".toml":
			tomlPaths = append(tomlPaths, p)
		default:
			jsonPaths = append(jsonPaths, p)
		}
	}

	if userPath != "" {
		route(userPath)
	}
	for _, dir := range searchDirs() {
		for _, base := range configBases {
			for _, ext := range []string{".json", ".yaml", ".yml", ".toml"} {
				route(filepath.Join(dir, base+ext))
			}
		}
	}
	return jsonPaths, yamlPaths, tomlPaths
}
