package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic prefixes every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll/DecodeAll, so a single pair is shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

// CompressedStorage stores values zstd compressed in the wrapped Storage.
// Values written before compression was enabled are returned unchanged.
type CompressedStorage struct {
	inner Storage
}

// NewCompressedStorage wraps inner.
func NewCompressedStorage(inner Storage) *CompressedStorage {
	return &CompressedStorage{inner: inner}
}

// Read implements Storage.Read
func (s *CompressedStorage) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := s.inner.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress %s: %w", key, err)
	}
	return out, nil
}

// Write implements Storage.Write
func (s *CompressedStorage) Write(ctx context.Context, key string, data []byte) error {
	return s.inner.Write(ctx, key, zstdEncoder.EncodeAll(data, nil))
}

// Exists implements Storage.Exists
func (s *CompressedStorage) Exists(ctx context.Context, key string) (bool, error) {
	return s.inner.Exists(ctx, key)
}

// ModTime implements Storage.ModTime
func (s *CompressedStorage) ModTime(ctx context.Context, key string) (time.Time, error) {
	return s.inner.ModTime(ctx, key)
}

// Remove implements Storage.Remove
func (s *CompressedStorage) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}

// List implements Storage.List
func (s *CompressedStorage) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}
