package queue

import (
	"path/filepath"
	"strings"

	"github.com/vishalSecmark/tradewebx-sub002/internal/api"
)

// normalizeName lowercases a file name and trims surrounding space.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func stripExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// nameMatches compares a file name to a target name case-insensitively,
// with or without extension on either side.
func nameMatches(fileName, targetName string) bool {
	f, t := normalizeName(fileName), normalizeName(targetName)
	if f == "" || t == "" {
		return false
	}
	return f == t || stripExt(f) == t || f == stripExt(t) || stripExt(f) == stripExt(t)
}

// MatchTarget returns the first target whose name matches fileName.
func MatchTarget(fileName string, targets []api.Target) *api.Target {
	for i := range targets {
		if nameMatches(fileName, targets[i].FileName) {
			t := targets[i]
			return &t
		}
	}
	return nil
}

// Classify decides the initial status of a file: pending when it matches
// an enabled target, disabled when it matches only a disabled one, and
// no_match otherwise.
func Classify(fileName string, enabled, all []api.Target) (Status, *api.Target) {
	if t := MatchTarget(fileName, enabled); t != nil {
		return StatusPending, t
	}
	if t := MatchTarget(fileName, all); t != nil {
		return StatusDisabled, t
	}
	return StatusNoMatch, nil
}
