// Package pathing derives canonical storage paths for migrated assets.
package pathing

import (
	"fmt"
	"strings"
	"sync"

	types "github.com/studiomoa/assetpipe/internal/domain/assets"
	"github.com/studiomoa/assetpipe/internal/pkg/dbctx"
)

// Config is injected; the folder-root convention is never a package constant.
type Config struct {
	Root string `yaml:"root"`
}

// FolderResolver resolves a subject's physical folder name. Implementations
// must return the stored folder, claiming one only when the subject has
// none; recomputing from the display name on every call would fork a
// subject's assets across folders when the name changes.
type FolderResolver interface {
	ResolveFolder(dbc dbctx.Context, subjectKey string) (string, error)
}

type Builder struct {
	root     string
	resolver FolderResolver

	mu    sync.Mutex
	cache map[string]string
}

func NewBuilder(cfg Config, resolver FolderResolver) *Builder {
	root := strings.Trim(strings.TrimSpace(cfg.Root), "/")
	if root == "" {
		root = "roots"
	}
	return &Builder{root: root, resolver: resolver, cache: map[string]string{}}
}

// FolderFor resolves and caches the subject's folder for the life of the
// builder. One resolution per subject per run.
func (b *Builder) FolderFor(dbc dbctx.Context, subjectKey string) (string, error) {
	b.mu.Lock()
	if folder, ok := b.cache[subjectKey]; ok {
		b.mu.Unlock()
		return folder, nil
	}
	b.mu.Unlock()

	folder, err := b.resolver.ResolveFolder(dbc, subjectKey)
	if err != nil {
		return "", fmt.Errorf("resolve folder for subject %q: %w", subjectKey, err)
	}
	if folder == "" {
		return "", fmt.Errorf("subject %q has no folder name", subjectKey)
	}

	b.mu.Lock()
	b.cache[subjectKey] = folder
	b.mu.Unlock()
	return folder, nil
}

// BuildPath derives the canonical storage key for one asset. Referentially
// transparent: identical inputs always produce the identical path, which is
// what makes re-running a migration safe.
func (b *Builder) BuildPath(dbc dbctx.Context, subjectKey, partitionKey string, cls types.Classification, sequence int, format string) (string, error) {
	folder, err := b.FolderFor(dbc, subjectKey)
	if err != nil {
		return "", err
	}
	return BuildPath(b.root, folder, partitionKey, cls, sequence, format), nil
}

// BuildPath is the pure path rule:
//
//	{root}/{folder}/{partition}/{initials}_s{scene}_{category}[_{variant}]_{seq:02d}.{format}
//
// The filename initials are the folder name by convention.
func BuildPath(root, folder, partitionKey string, cls types.Classification, sequence int, format string) string {
	return fmt.Sprintf("%s/%s/%s/%s", root, folder, partitionKey,
		DerivedFilename(folder, cls, sequence, format))
}

// DerivedFilename builds the canonical file name for one asset.
func DerivedFilename(initials string, cls types.Classification, sequence int, format string) string {
	format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	parts := []string{initials, fmt.Sprintf("s%d", cls.Scene), string(cls.Category)}
	if cls.Variant != "" {
		parts = append(parts, cls.Variant)
	}
	parts = append(parts, fmt.Sprintf("%02d", sequence))
	return strings.Join(parts, "_") + "." + format
}
