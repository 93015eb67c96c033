package migrate

import (
	"path/filepath"
	"strings"
)

// Task is one ephemeral unit of migration work. Tasks are not persisted;
// failures live in the RunReport and are re-submitted from there.
type Task struct {
	SourcePath       string `json:"source_path"`
	SubjectKey       string `json:"subject_key"`
	PartitionKey     string `json:"partition_key"`
	OriginalFilename string `json:"original_filename"`
	TargetFormat     string `json:"target_format"`
}

// Options control one batch run.
type Options struct {
	ForceOverwrite bool
	Concurrency    int
}

// nonMediaFormats are document formats not retained in asset storage. A
// source in one of these formats is deleted on sight; that is policy, not an
// error.
var nonMediaFormats = map[string]bool{
	"pdf": true, "doc": true, "docx": true, "hwp": true,
	"ppt": true, "pptx": true, "xls": true, "xlsx": true,
	"txt": true, "zip": true,
}

// videoFormats keep their container instead of normalizing to the raster
// target format.
var videoFormats = map[string]bool{
	"mp4": true, "m4v": true, "mov": true, "webm": true, "avi": true,
}

func formatOf(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

func isNonMedia(format string) bool { return nonMediaFormats[format] }
func isVideo(format string) bool    { return videoFormats[format] }
