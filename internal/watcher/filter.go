package watcher

import (
	"os"
	"path/filepath"
	"strings"
)

// sourceSegment must appear in a path for a change to count.
const sourceSegment = "src"

// ignoredSegments never produce triggers and are never registered.
var ignoredSegments = map[string]bool{
	"target":       true,
	".stackable":   true,
	".git":         true,
	"node_modules": true,
}

// releaseBuildDir is only ignored at the workspace top level so that a
// source folder named "build" still counts.
const releaseBuildDir = "build"

// Relevant reports whether a change at path should trigger a rebuild. This is
// a coarse path filter, not a dependency check.
func Relevant(root, path string) bool {
	segments, ok := relSegments(root, path)
	if !ok {
		return false
	}

	if segments[0] == releaseBuildDir {
		return false
	}

	hasSource := false
	for _, s := range segments {
		if ignoredSegments[s] {
			return false
		}
		if s == sourceSegment {
			hasSource = true
		}
	}

	return hasSource
}

// skipDir reports whether a directory below root should not be registered.
func skipDir(root, path string) bool {
	segments, ok := relSegments(root, path)
	if !ok {
		return true
	}
	if segments[0] == "." {
		return false
	}
	if segments[0] == releaseBuildDir {
		return true
	}
	for _, s := range segments {
		if ignoredSegments[s] {
			return true
		}
	}
	return false
}

func relSegments(root, path string) ([]string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return nil, false
	}
	return strings.Split(rel, "/"), true
}

func lstatDir(path string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
