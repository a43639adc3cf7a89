package compilecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/prism/pkg/errdefs"
	"github.com/platinummonkey/prism/pkg/fingerprint"
	"github.com/platinummonkey/prism/pkg/observability"
	"github.com/platinummonkey/prism/pkg/storage"
)

var appKey = ArtifactKey{Resource: "src/app.js", GroupID: "best"}

func newTestMetaStore(t *testing.T, trackHits bool) (*MetaStore, *storage.FileSystemStorage, *fakeClock, *syncBuffer) {
	t.Helper()
	fs := newFS(t)
	clock := newFakeClock()
	logger, buf := newTestLogger(observability.DebugLevel)
	s, err := NewMetaStore(fs, ".prism", MetaStoreOptions{
		Logger:    logger,
		Now:       clock.Now,
		TrackHits: trackHits,
	})
	require.NoError(t, err)
	return s, fs, clock, buf
}

func compiledApp() *CompileResult {
	return &CompileResult{
		Content:     []byte("COMPILED"),
		ContentType: "application/javascript",
		Sources:     []string{"src/app.js", "src/dep.js"},
		Assets:      []Asset{{Path: "app.js.map", Content: []byte(`{"version":3}`)}},
		Extra:       map[string]any{"map": true},
	}
}

func TestMetaStore_WriteCreated(t *testing.T) {
	ctx := context.Background()
	s, fs, clock, _ := newTestMetaStore(t, false)
	writeFile(t, fs, "src/app.js", "app")
	writeFile(t, fs, "src/dep.js", "dep")

	meta, err := s.Write(ctx, appKey, WriteCreated, nil, compiledApp())
	require.NoError(t, err)

	assert.Equal(t, "application/javascript", meta.ContentType)
	assert.Equal(t, fingerprint.Of([]byte("COMPILED")), meta.ContentFingerprint)
	assert.Equal(t, []string{"../../../../src/app.js", "../../../../src/dep.js"}, meta.Sources)
	assert.Equal(t, []string{fingerprint.Of([]byte("app")), fingerprint.Of([]byte("dep"))}, meta.SourcesFingerprint)
	assert.Equal(t, []string{"app.js.map"}, meta.Assets)
	assert.Equal(t, clock.Now(), meta.CreatedAt)
	assert.Equal(t, clock.Now(), meta.LastModifiedAt)
	assert.Zero(t, meta.HitCount)

	content, err := fs.Read(ctx, ".prism/best/src/app.js")
	require.NoError(t, err)
	assert.Equal(t, "COMPILED", string(content))
	asset, err := fs.Read(ctx, ".prism/best/src/app.js__asset__/app.js.map")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":3}`, string(asset))

	read, err := s.ReadMeta(ctx, appKey)
	require.NoError(t, err)
	assert.Equal(t, meta.Sources, read.Sources)
	assert.Equal(t, meta.AssetsFingerprint, read.AssetsFingerprint)
	assert.True(t, meta.CreatedAt.Equal(read.CreatedAt))
	assert.Equal(t, true, read.Extra["map"])

	v, err := s.Validate(ctx, appKey, read, Preconditions{})
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "COMPILED", string(v.Content))

	keys, err := s.SourceKeys(appKey, read)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/app.js", "src/dep.js"}, keys)
}

func TestMetaStore_DefaultSourceIsResource(t *testing.T) {
	ctx := context.Background()
	s, fs, _, _ := newTestMetaStore(t, false)
	writeFile(t, fs, "src/app.js", "app")

	meta, err := s.Write(ctx, appKey, WriteCreated, nil, &CompileResult{Content: []byte("x"), ContentType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, []string{"../../../../src/app.js"}, meta.Sources)
}

func TestMetaStore_Validate(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*MetaStore, *storage.FileSystemStorage, *Meta) {
		s, fs, _, _ := newTestMetaStore(t, false)
		writeFile(t, fs, "src/app.js", "app")
		writeFile(t, fs, "src/dep.js", "dep")
		meta, err := s.Write(ctx, appKey, WriteCreated, nil, compiledApp())
		require.NoError(t, err)
		return s, fs, meta
	}

	t.Run("content removed", func(t *testing.T) {
		s, fs, meta := setup(t)
		require.NoError(t, fs.Remove(ctx, ".prism/best/src/app.js"))
		v, err := s.Validate(ctx, appKey, meta, Preconditions{})
		require.NoError(t, err)
		assert.False(t, v.Valid)
		assert.Equal(t, ReasonContentNotFound, v.Reason)
	})

	t.Run("content rewritten", func(t *testing.T) {
		s, fs, meta := setup(t)
		writeFile(t, fs, ".prism/best/src/app.js", "EVIL")
		v, err := s.Validate(ctx, appKey, meta, Preconditions{})
		require.NoError(t, err)
		assert.False(t, v.Valid)
		assert.Equal(t, ReasonContentFingerprintMismatch, v.Reason)
		assert.Empty(t, v.Content)

		// an etag matching the stale meta does not rescue rewritten content
		v, err = s.Validate(ctx, appKey, meta, Preconditions{ETag: meta.ContentFingerprint})
		require.NoError(t, err)
		assert.Equal(t, ReasonContentFingerprintMismatch, v.Reason)
	})

	t.Run("source changed", func(t *testing.T) {
		s, fs, meta := setup(t)
		writeFile(t, fs, "src/dep.js", "dep v2")
		v, err := s.Validate(ctx, appKey, meta, Preconditions{})
		require.NoError(t, err)
		assert.False(t, v.Valid)
		assert.Equal(t, ReasonSourceFingerprintMismatch, v.Reason)
		assert.Equal(t, "src/dep.js", v.Data["source"])
	})

	t.Run("source removed", func(t *testing.T) {
		s, fs, meta := setup(t)
		require.NoError(t, fs.Remove(ctx, "src/dep.js"))
		v, err := s.Validate(ctx, appKey, meta, Preconditions{})
		require.NoError(t, err)
		assert.Equal(t, ReasonSourceNotFound, v.Reason)
		assert.Equal(t, "src/dep.js", v.Data["source"])
	})

	t.Run("first failing source wins", func(t *testing.T) {
		s, fs, meta := setup(t)
		writeFile(t, fs, "src/app.js", "app v2")
		require.NoError(t, fs.Remove(ctx, "src/dep.js"))
		v, err := s.Validate(ctx, appKey, meta, Preconditions{})
		require.NoError(t, err)
		assert.Equal(t, ReasonSourceFingerprintMismatch, v.Reason)
		assert.Equal(t, "src/app.js", v.Data["source"])
	})

	t.Run("asset changed", func(t *testing.T) {
		s, fs, meta := setup(t)
		writeFile(t, fs, ".prism/best/src/app.js__asset__/app.js.map", "{}")
		v, err := s.Validate(ctx, appKey, meta, Preconditions{})
		require.NoError(t, err)
		assert.Equal(t, ReasonAssetFingerprintMismatch, v.Reason)
	})

	t.Run("asset removed", func(t *testing.T) {
		s, fs, meta := setup(t)
		require.NoError(t, fs.Remove(ctx, ".prism/best/src/app.js__asset__/app.js.map"))
		v, err := s.Validate(ctx, appKey, meta, Preconditions{})
		require.NoError(t, err)
		assert.Equal(t, ReasonAssetNotFound, v.Reason)
	})

	t.Run("no sources", func(t *testing.T) {
		s, _, meta := setup(t)
		meta.Sources = nil
		meta.SourcesFingerprint = nil
		v, err := s.Validate(ctx, appKey, meta, Preconditions{})
		require.NoError(t, err)
		assert.Equal(t, ReasonSourcesEmpty, v.Reason)
	})

	t.Run("etag precondition", func(t *testing.T) {
		s, _, meta := setup(t)
		v, err := s.Validate(ctx, appKey, meta, Preconditions{ETag: meta.ContentFingerprint})
		require.NoError(t, err)
		assert.True(t, v.Valid)

		v, err = s.Validate(ctx, appKey, meta, Preconditions{ETag: "stale"})
		require.NoError(t, err)
		assert.False(t, v.Valid)
		assert.Equal(t, ReasonPreconditionMismatch, v.Reason)
		assert.Equal(t, "COMPILED", string(v.Content))
	})

	t.Run("if-modified-since precondition", func(t *testing.T) {
		s, _, meta := setup(t)
		v, err := s.Validate(ctx, appKey, meta, Preconditions{IfModifiedSince: time.Now().Add(time.Hour)})
		require.NoError(t, err)
		assert.True(t, v.Valid)

		v, err = s.Validate(ctx, appKey, meta, Preconditions{IfModifiedSince: time.Now().Add(-time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, ReasonPreconditionMismatch, v.Reason)
	})

	t.Run("conflicting preconditions", func(t *testing.T) {
		s, _, meta := setup(t)
		_, err := s.Validate(ctx, appKey, meta, Preconditions{ETag: "x", IfModifiedSince: time.Now()})
		assert.ErrorIs(t, err, errdefs.ErrValidation)
	})
}

func TestMetaStore_DropsMissingSources(t *testing.T) {
	ctx := context.Background()
	s, fs, _, logs := newTestMetaStore(t, false)
	writeFile(t, fs, "src/app.js", "app")

	result := compiledApp()
	result.Sources = []string{"src/app.js", "src/gone.js", "../outside.js", "src/app.js"}
	meta, err := s.Write(ctx, appKey, WriteCreated, nil, result)
	require.NoError(t, err)
	assert.Equal(t, []string{"../../../../src/app.js"}, meta.Sources)

	dropped := logs.events(t, "source_dropped")
	require.Len(t, dropped, 2)
	assert.Equal(t, "src/gone.js", dropped[0]["source"])
	assert.Equal(t, "../outside.js", dropped[1]["source"])

	v, err := s.Validate(ctx, appKey, meta, Preconditions{})
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestMetaStore_AllSourcesDropped(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newTestMetaStore(t, false)

	meta, err := s.Write(ctx, appKey, WriteCreated, nil, compiledApp())
	require.NoError(t, err)
	assert.Empty(t, meta.Sources)

	v, err := s.Validate(ctx, appKey, meta, Preconditions{})
	require.NoError(t, err)
	assert.Equal(t, ReasonSourcesEmpty, v.Reason)
}

func TestMetaStore_DropsInvalidAssets(t *testing.T) {
	ctx := context.Background()
	s, fs, _, logs := newTestMetaStore(t, false)
	writeFile(t, fs, "src/app.js", "app")

	result := compiledApp()
	result.Assets = append(result.Assets,
		Asset{Path: "../../escape.txt", Content: []byte("x")},
		Asset{Path: "meta.json", Content: []byte("x")},
		Asset{Path: "app.js.map", Content: []byte("dup")},
	)
	meta, err := s.Write(ctx, appKey, WriteCreated, nil, result)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.js.map"}, meta.Assets)
	assert.Len(t, logs.events(t, "asset_dropped"), 3)

	ok, err := fs.Exists(ctx, ".prism/best/escape.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetaStore_WriteUpdated(t *testing.T) {
	ctx := context.Background()
	s, fs, clock, _ := newTestMetaStore(t, true)
	writeFile(t, fs, "src/app.js", "app")
	writeFile(t, fs, "src/dep.js", "dep")

	first, err := s.Write(ctx, appKey, WriteCreated, nil, compiledApp())
	require.NoError(t, err)
	clock.Advance(time.Minute)
	hit, err := s.Write(ctx, appKey, WriteRevalidated, first, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, hit.HitCount)

	clock.Advance(time.Minute)
	result := compiledApp()
	result.Content = []byte("COMPILED v2")
	result.Assets = []Asset{{Path: "other.map", Content: []byte("{}")}}
	updated, err := s.Write(ctx, appKey, WriteUpdated, hit, result)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, updated.CreatedAt)
	assert.Equal(t, clock.Now(), updated.LastModifiedAt)
	assert.EqualValues(t, 1, updated.HitCount)
	assert.Equal(t, []string{"other.map"}, updated.Assets)

	ok, err := fs.Exists(ctx, ".prism/best/src/app.js__asset__/app.js.map")
	require.NoError(t, err)
	assert.False(t, ok, "stale asset should be removed")
}

func TestMetaStore_WriteRevalidated(t *testing.T) {
	ctx := context.Background()

	t.Run("tracks hits", func(t *testing.T) {
		s, fs, clock, _ := newTestMetaStore(t, true)
		writeFile(t, fs, "src/app.js", "app")
		writeFile(t, fs, "src/dep.js", "dep")
		meta, err := s.Write(ctx, appKey, WriteCreated, nil, compiledApp())
		require.NoError(t, err)

		clock.Advance(time.Hour)
		meta, err = s.Write(ctx, appKey, WriteRevalidated, meta, nil)
		require.NoError(t, err)
		meta, err = s.Write(ctx, appKey, WriteRevalidated, meta, nil)
		require.NoError(t, err)

		read, err := s.ReadMeta(ctx, appKey)
		require.NoError(t, err)
		assert.EqualValues(t, 2, read.HitCount)
		require.NotNil(t, read.LastHitAt)
		assert.True(t, clock.Now().Equal(*read.LastHitAt))
		assert.True(t, clock.Now().Equal(read.LastUsed()))
		assert.Equal(t, meta.SourcesFingerprint, read.SourcesFingerprint)
	})

	t.Run("without hit tracking", func(t *testing.T) {
		s, fs, _, _ := newTestMetaStore(t, false)
		writeFile(t, fs, "src/app.js", "app")
		meta, err := s.Write(ctx, appKey, WriteCreated, nil, compiledApp())
		require.NoError(t, err)
		same, err := s.Write(ctx, appKey, WriteRevalidated, meta, nil)
		require.NoError(t, err)
		assert.Same(t, meta, same)
	})

	t.Run("needs meta", func(t *testing.T) {
		s, _, _, _ := newTestMetaStore(t, true)
		_, err := s.Write(ctx, appKey, WriteRevalidated, nil, nil)
		assert.ErrorIs(t, err, errdefs.ErrValidation)
	})
}

func TestMetaStore_WriteRejectsInvalidResults(t *testing.T) {
	ctx := context.Background()
	s, _, _, _ := newTestMetaStore(t, false)

	for _, result := range []*CompileResult{
		nil,
		{ContentType: "text/plain"},
		{Content: []byte("x")},
	} {
		_, err := s.Write(ctx, appKey, WriteCreated, nil, result)
		assert.ErrorIs(t, err, errdefs.ErrValidation)
	}
	_, err := s.Write(ctx, appKey, WriteMode("bogus"), nil, compiledApp())
	assert.ErrorIs(t, err, errdefs.ErrValidation)

	_, err = s.ReadMeta(ctx, appKey)
	assert.ErrorIs(t, err, ErrMetaNotFound)
}

func TestMetaStore_ReadMetaCorrupt(t *testing.T) {
	ctx := context.Background()
	s, fs, _, logs := newTestMetaStore(t, false)

	_, err := s.ReadMeta(ctx, appKey)
	assert.ErrorIs(t, err, ErrMetaNotFound)
	assert.Empty(t, logs.events(t, "meta_corrupt"))

	for _, body := range []string{
		"{not json",
		`{"contentType":"text/plain","sources":["a"],"sourcesFingerprint":[]}`,
		`{"contentType":"text/plain","sources":["/etc/passwd"],"sourcesFingerprint":["x"]}`,
		`{"sources":[],"sourcesFingerprint":[]}`,
	} {
		writeFile(t, fs, ".prism/best/src/app.js__asset__/meta.json", body)
		_, err := s.ReadMeta(ctx, appKey)
		assert.ErrorIs(t, err, ErrMetaNotFound, body)
	}
	assert.Len(t, logs.events(t, "meta_corrupt"), 4)
}

func TestMetaStore_RemoveAndList(t *testing.T) {
	ctx := context.Background()
	s, fs, _, _ := newTestMetaStore(t, false)
	writeFile(t, fs, "src/app.js", "app")

	other := ArtifactKey{Resource: "src/app.js", GroupID: "fallback"}
	_, err := s.Write(ctx, appKey, WriteCreated, nil, compiledApp())
	require.NoError(t, err)
	_, err = s.Write(ctx, other, WriteCreated, nil, compiledApp())
	require.NoError(t, err)
	writeFile(t, fs, ".prism/best/src/app.js__asset__/meta.json.lock", "")

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ArtifactKey{appKey, other}, keys)

	require.NoError(t, s.Remove(ctx, appKey))
	keys, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ArtifactKey{other}, keys)

	for _, k := range []string{".prism/best/src/app.js", ".prism/best/src/app.js__asset__/app.js.map"} {
		ok, err := fs.Exists(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
	ok, err := fs.Exists(ctx, ".prism/best/src/app.js__asset__/meta.json.lock")
	require.NoError(t, err)
	assert.True(t, ok, "lock files are kept")
}
