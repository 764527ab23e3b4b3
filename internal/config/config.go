// Package config turns the merged viper settings (file, env, flags) into the
// typed options the kiosk runs with.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Version is the application version recorded in newly written config
// files.
var Version = "1.2.0"

// Option keys.
const (
	KeyVersion            = "version"
	KeyCabinetName        = "cabinetName"
	KeyWidth              = "width"
	KeyHeight             = "height"
	KeyFullscreen         = "fullscreen"
	KeyDebounceTime       = "debounceTime"
	KeyFixCSS             = "fixCss"
	KeyDevTools           = "devTools"
	KeyHideCursor         = "hideCursor"
	KeyShowSketchDropdown = "showSketchDropdown"
	KeySketchesPath       = "sketchesPath"
	KeyAllowP5jsImports   = "allowP5jsImports"
	KeyImportsURL         = "importsUrl"
	KeyEditorURL          = "editorUrl"
	KeyEditorDomain       = "editorDomain"
	KeyPollInterval       = "pollInterval"
	KeyFetchTimeout       = "fetchTimeout"
	KeyDownloadTimeout    = "downloadTimeout"
	KeyAllowlistPath      = "allowlistPath"
	KeyLedgerPath         = "ledgerPath"
	KeyHistoryPath        = "historyPath"
	KeyAutoConfirm        = "autoConfirm"
	KeyListen             = "listen"
	KeyProxy              = "proxy"
)

// ImportsDirName is the directory under the sketches path that holds
// imported sketches and the import bookkeeping files.
const ImportsDirName = "_imports"

// Duration marshals as a Go duration string ("1m0s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Options is what the UI receives from get-opts.
type Options struct {
	Version            string `json:"version"`
	CabinetName        string `json:"cabinetName"`
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	Fullscreen         bool   `json:"fullscreen"`
	DebounceTime       int    `json:"debounceTime"`
	FixCSS             bool   `json:"fixCss"`
	DevTools           bool   `json:"devTools"`
	HideCursor         bool   `json:"hideCursor"`
	ShowSketchDropdown bool   `json:"showSketchDropdown"`
	SketchesPath       string `json:"sketchesPath"`
	AllowP5jsImports   bool   `json:"allowP5jsImports"`
	ImportsURL         string `json:"importsUrl"`

	EditorURL       string   `json:"editorUrl"`
	EditorDomain    string   `json:"editorDomain"`
	PollInterval    Duration `json:"pollInterval"`
	FetchTimeout    Duration `json:"fetchTimeout"`
	DownloadTimeout Duration `json:"downloadTimeout"`
	AllowlistPath   string   `json:"allowlistPath"`
	LedgerPath      string   `json:"ledgerPath"`
	HistoryPath     string   `json:"historyPath"`
	AutoConfirm     bool     `json:"autoConfirm"`
	Listen          string   `json:"listen"`
	Proxy           string   `json:"proxy,omitempty"`

	// ConfigVersion is the version found in the config file before it was
	// replaced by Version.
	ConfigVersion string `json:"-"`
}

// SetDefaults registers the default for every option on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyVersion, Version)
	v.SetDefault(KeyCabinetName, "test")
	v.SetDefault(KeyWidth, 1440)
	v.SetDefault(KeyHeight, 900)
	v.SetDefault(KeyFullscreen, false)
	v.SetDefault(KeyDebounceTime, 100)
	v.SetDefault(KeyFixCSS, true)
	v.SetDefault(KeyDevTools, true)
	v.SetDefault(KeyHideCursor, false)
	v.SetDefault(KeyShowSketchDropdown, false)
	v.SetDefault(KeySketchesPath, filepath.Join("~", "Documents", "creative-coding-showcase", "sketches"))
	v.SetDefault(KeyAllowP5jsImports, false)
	v.SetDefault(KeyImportsURL, "http://0.0.0.0/imports")
	v.SetDefault(KeyEditorURL, "https://editor.p5js.org/editor")
	v.SetDefault(KeyEditorDomain, "p5js.org")
	v.SetDefault(KeyPollInterval, "60s")
	v.SetDefault(KeyFetchTimeout, "5s")
	v.SetDefault(KeyDownloadTimeout, "60s")
	v.SetDefault(KeyAllowlistPath, "")
	v.SetDefault(KeyLedgerPath, "")
	v.SetDefault(KeyHistoryPath, "")
	v.SetDefault(KeyAutoConfirm, true)
	v.SetDefault(KeyListen, "127.0.0.1:7070")
	v.SetDefault(KeyProxy, "")
}

// Load builds Options from v. Paths have "~" expanded and the bookkeeping
// file paths default to files inside the imports directory.
func Load(v *viper.Viper) (Options, error) {
	o := Options{
		Version:            Version,
		ConfigVersion:      v.GetString(KeyVersion),
		CabinetName:        strings.TrimSpace(v.GetString(KeyCabinetName)),
		Width:              v.GetInt(KeyWidth),
		Height:             v.GetInt(KeyHeight),
		Fullscreen:         v.GetBool(KeyFullscreen),
		DebounceTime:       v.GetInt(KeyDebounceTime),
		FixCSS:             v.GetBool(KeyFixCSS),
		DevTools:           v.GetBool(KeyDevTools),
		HideCursor:         v.GetBool(KeyHideCursor),
		ShowSketchDropdown: v.GetBool(KeyShowSketchDropdown),
		AllowP5jsImports:   v.GetBool(KeyAllowP5jsImports),
		ImportsURL:         strings.TrimRight(v.GetString(KeyImportsURL), "/"),
		EditorURL:          strings.TrimRight(v.GetString(KeyEditorURL), "/"),
		EditorDomain:       v.GetString(KeyEditorDomain),
		PollInterval:       Duration(v.GetDuration(KeyPollInterval)),
		FetchTimeout:       Duration(v.GetDuration(KeyFetchTimeout)),
		DownloadTimeout:    Duration(v.GetDuration(KeyDownloadTimeout)),
		AutoConfirm:        v.GetBool(KeyAutoConfirm),
		Listen:             v.GetString(KeyListen),
		Proxy:              v.GetString(KeyProxy),
	}

	if o.CabinetName == "" {
		return o, fmt.Errorf("%s must not be empty", KeyCabinetName)
	}
	if o.PollInterval <= 0 {
		return o, fmt.Errorf("%s must be positive, got %s", KeyPollInterval, v.GetString(KeyPollInterval))
	}
	if o.FetchTimeout <= 0 || o.DownloadTimeout <= 0 {
		return o, fmt.Errorf("%s and %s must be positive", KeyFetchTimeout, KeyDownloadTimeout)
	}

	var err error
	if o.SketchesPath, err = expand(v.GetString(KeySketchesPath)); err != nil {
		return o, err
	}
	if o.SketchesPath == "" {
		return o, fmt.Errorf("%s must not be empty", KeySketchesPath)
	}
	if o.AllowlistPath, err = pathOr(v.GetString(KeyAllowlistPath), o.ImportsDir(), "_allowlist.json"); err != nil {
		return o, err
	}
	if o.LedgerPath, err = pathOr(v.GetString(KeyLedgerPath), o.ImportsDir(), "_codes.json"); err != nil {
		return o, err
	}
	if o.HistoryPath, err = pathOr(v.GetString(KeyHistoryPath), o.ImportsDir(), "_history.sqlite"); err != nil {
		return o, err
	}
	return o, nil
}

// ImportsDir is where imported sketches are written.
func (o Options) ImportsDir() string {
	return filepath.Join(o.SketchesPath, ImportsDirName)
}

// CatalogPath is the gallery's catalog of imported sketches.
func (o Options) CatalogPath() string {
	return filepath.Join(o.ImportsDir(), "_links.json")
}

// VersionMismatch returns a warning when the config file was written by a
// different version, or "" when they agree.
func (o Options) VersionMismatch() string {
	if o.ConfigVersion == "" || o.ConfigVersion == o.Version {
		return ""
	}
	return fmt.Sprintf("Configuration version does not match app version: config:%s => app:%s", o.ConfigVersion, o.Version)
}

func expand(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	p, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return filepath.Clean(p), nil
}

func pathOr(configured, dir, name string) (string, error) {
	if configured == "" {
		return filepath.Join(dir, name), nil
	}
	return expand(configured)
}
