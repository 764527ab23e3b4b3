package utils

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
)

var Log = logrus.New()

func SetLogLevel(level string) {
	// We are not using logrus' trace and panic levels
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(log.DebugLevel)
	case "info":
		Log.SetLevel(log.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(log.WarnLevel)
	case "error":
		Log.SetLevel(log.ErrorLevel)
	case "fatal":
		Log.SetLevel(log.FatalLevel)
	default:
		log.Fatal("Bad error level string")
	}
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	unsafeChars   = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// PathSafe turns a display name into a single path element: runs of
// whitespace become "_" and anything outside [A-Za-z0-9_.-] is dropped.
func PathSafe(name string) string {
	s := whitespaceRun.ReplaceAllString(strings.TrimSpace(name), "_")
	s = unsafeChars.ReplaceAllString(s, "")
	s = strings.Trim(s, ".")
	return s
}

// SplitName splits a display name into first and last name on the first
// run of whitespace.
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
