package compilecache

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/platinummonkey/prism/pkg/storage"
)

const (
	assetSuffix = "__asset__"
	metaFile    = "meta.json"
)

// Layout maps artifact keys to storage keys below a cache directory:
//
//	<cacheDir>/<group>/<resource>                      content
//	<cacheDir>/<group>/<resource>__asset__/meta.json   meta
//	<cacheDir>/<group>/<resource>__asset__/<path>      assets
type Layout struct {
	cacheDir string
}

// NewLayout returns the layout rooted at cacheDir
func NewLayout(cacheDir string) (Layout, error) {
	cleaned, err := storage.CleanKey(cacheDir)
	if err != nil {
		return Layout{}, err
	}
	return Layout{cacheDir: cleaned}, nil
}

// CacheDir returns the cache directory key
func (l Layout) CacheDir() string {
	return l.cacheDir
}

// ContentKey returns the key of the compiled content
func (l Layout) ContentKey(k ArtifactKey) string {
	return path.Join(l.cacheDir, k.GroupID, k.Resource)
}

// AssetDir returns the directory holding meta and assets
func (l Layout) AssetDir(k ArtifactKey) string {
	return l.ContentKey(k) + assetSuffix
}

// MetaKey returns the key of the meta record
func (l Layout) MetaKey(k ArtifactKey) string {
	return path.Join(l.AssetDir(k), metaFile)
}

// AssetKey returns the key of an asset, rejecting paths that leave the
// asset directory or collide with the meta record
func (l Layout) AssetKey(k ArtifactKey, assetPath string) (string, error) {
	dir := l.AssetDir(k)
	key, err := storage.CleanKey(path.Join(dir, assetPath))
	if err != nil || !strings.HasPrefix(key, dir+"/") || key == l.MetaKey(k) {
		return "", fmt.Errorf("%w: asset %q", storage.ErrInvalidPath, assetPath)
	}
	return key, nil
}

// ParseMetaKey inverts MetaKey
func (l Layout) ParseMetaKey(key string) (ArtifactKey, bool) {
	rest, ok := strings.CutPrefix(key, l.cacheDir+"/")
	if !ok {
		return ArtifactKey{}, false
	}
	rest, ok = strings.CutSuffix(rest, assetSuffix+"/"+metaFile)
	if !ok {
		return ArtifactKey{}, false
	}
	group, resource, ok := strings.Cut(rest, "/")
	if !ok {
		return ArtifactKey{}, false
	}
	k := ArtifactKey{Resource: resource, GroupID: group}
	if k.Validate() != nil {
		return ArtifactKey{}, false
	}
	return k, true
}

// relRef returns target as a slash path relative to dir
func relRef(dir, target string) (string, error) {
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(target))
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// resolveRef resolves a reference relative to dir into a storage key
func resolveRef(dir, ref string) (string, error) {
	if ref == "" || path.IsAbs(ref) {
		return "", fmt.Errorf("%w: reference %q", storage.ErrInvalidPath, ref)
	}
	return storage.CleanKey(path.Join(dir, ref))
}
