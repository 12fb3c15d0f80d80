// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/cascadehq/cascade-engine/internal/metadata"
)

// CompressionThreshold is the minimum payload size, in bytes, that
// qualifies for transparent compression.
const CompressionThreshold = 1024

// ChunkSize is the boundary at which putLarge/getLarge split a payload into
// indexed chunk objects.
const ChunkSize = 25 * 1024 * 1024

// gzipMagic is the two-byte gzip magic signature used to sniff an unmarked
// payload for the backward-compatibility fallback path.
var gzipMagic = []byte{0x1f, 0x8b}

// CompressionCodec selects the codec applied when a payload crosses
// CompressionThreshold.
type CompressionCodec string

const (
	CodecGzip   CompressionCodec = "gzip"
	CodecBrotli CompressionCodec = "brotli"
)

// CodeObject is one stored code blob plus the compression marker. Marker
// presence is equivalent to "payload is compressed".
type CodeObject struct {
	Data       []byte
	Compressed bool
	Codec      CompressionCodec
	ChunkCount int // 0 for a non-chunked object
	TotalSize  int64
}

// CodeStore is the stored-code contract: plain get/put, fallback-aware
// retrieval, and chunked large-object variants.
type CodeStore interface {
	GetCode(ctx context.Context, id, version string, derivative metadata.Derivative) (*CodeObject, error)
	PutCode(ctx context.Context, id, version string, derivative metadata.Derivative, code []byte) error
	GetWithFallback(ctx context.Context, id, version string, fallbacks []string, derivative metadata.Derivative) (obj *CodeObject, servedVersion string, usedFallback bool, err error)

	PutLarge(ctx context.Context, id, version string, derivative metadata.Derivative, code []byte) error
	GetLarge(ctx context.Context, id, version string, derivative metadata.Derivative) (*CodeObject, error)
	DeleteLarge(ctx context.Context, id, version string, derivative metadata.Derivative) error
}

func compress(codec CompressionCodec, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch codec {
	case CodecBrotli:
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decompress(codec CompressionCodec, data []byte) ([]byte, error) {
	switch codec {
	case CodecBrotli:
		r := brotli.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)
	default:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	}
}

// looksCompressed sniffs data for a gzip magic header, used only on the
// backward-compatibility path when no explicit marker is present.
func looksCompressed(data []byte) bool {
	return len(data) >= 2 && bytes.Equal(data[:2], gzipMagic)
}

// maybeCompress applies the codec when data is large enough and the result
// is actually smaller.
func maybeCompress(codec CompressionCodec, data []byte) (out []byte, compressed bool, err error) {
	if len(data) < CompressionThreshold {
		return data, false, nil
	}
	c, err := compress(codec, data)
	if err != nil {
		return nil, false, fmt.Errorf("cascade: compress code payload: %w", err)
	}
	if len(c) < len(data) {
		return c, true, nil
	}
	return data, false, nil
}

func codeKey(id, version string, derivative metadata.Derivative) string {
	if version == "" {
		return fmt.Sprintf("code:%s:%s", id, derivative)
	}
	return fmt.Sprintf("code:%s:v:%s:%s", id, version, derivative)
}

// MemoryCodeStore is an in-process CodeStore, backing unit tests and
// no-object-store-configured deployments.
type MemoryCodeStore struct {
	mu     sync.RWMutex
	objs   map[string]*CodeObject
	chunks map[string][][]byte
	codec  CompressionCodec
}

// NewMemoryCodeStore constructs an empty store using codec for compression.
func NewMemoryCodeStore(codec CompressionCodec) *MemoryCodeStore {
	if codec == "" {
		codec = CodecGzip
	}
	return &MemoryCodeStore{
		objs:   make(map[string]*CodeObject),
		chunks: make(map[string][][]byte),
		codec:  codec,
	}
}

func (s *MemoryCodeStore) GetCode(_ context.Context, id, version string, derivative metadata.Derivative) (*CodeObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(codeKey(id, version, derivative))
}

func (s *MemoryCodeStore) getLocked(key string) (*CodeObject, error) {
	obj, ok := s.objs[key]
	if !ok {
		return nil, nil
	}
	out := *obj
	data := append([]byte(nil), obj.Data...)

	switch {
	case obj.Compressed:
		plain, err := decompress(obj.Codec, data)
		if err != nil {
			return nil, fmt.Errorf("cascade: decompress code payload: %w", err)
		}
		out.Data = plain
	case looksCompressed(data):
		// Backward-compatibility path: no marker, but the payload looks
		// compressed. Attempt transparent decompression, falling back to
		// raw bytes on failure.
		if plain, err := decompress(CodecGzip, data); err == nil {
			out.Data = plain
		} else {
			out.Data = data
		}
	default:
		out.Data = data
	}
	return &out, nil
}

func (s *MemoryCodeStore) PutCode(_ context.Context, id, version string, derivative metadata.Derivative, code []byte) error {
	stored, compressed, err := maybeCompress(s.codec, code)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objs[codeKey(id, version, derivative)] = &CodeObject{
		Data:       stored,
		Compressed: compressed,
		Codec:      s.codec,
		TotalSize:  int64(len(code)),
	}
	return nil
}

func (s *MemoryCodeStore) GetWithFallback(ctx context.Context, id, version string, fallbacks []string, derivative metadata.Derivative) (*CodeObject, string, bool, error) {
	if obj, err := s.GetCode(ctx, id, version, derivative); err != nil {
		return nil, "", false, err
	} else if obj != nil {
		return obj, version, false, nil
	}
	for _, fb := range fallbacks {
		obj, err := s.GetCode(ctx, id, fb, derivative)
		if err != nil {
			return nil, "", false, err
		}
		if obj != nil {
			return obj, fb, true, nil
		}
	}
	return nil, "", false, nil
}

func (s *MemoryCodeStore) PutLarge(_ context.Context, id, version string, derivative metadata.Derivative, code []byte) error {
	key := codeKey(id, version, derivative)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(code) <= ChunkSize {
		stored, compressed, err := maybeCompress(s.codec, code)
		if err != nil {
			return err
		}
		s.objs[key] = &CodeObject{Data: stored, Compressed: compressed, Codec: s.codec, TotalSize: int64(len(code))}
		delete(s.chunks, key)
		return nil
	}

	var chunks [][]byte
	for off := 0; off < len(code); off += ChunkSize {
		end := off + ChunkSize
		if end > len(code) {
			end = len(code)
		}
		chunks = append(chunks, append([]byte(nil), code[off:end]...))
	}
	s.chunks[key] = chunks
	s.objs[key] = &CodeObject{ChunkCount: len(chunks), TotalSize: int64(len(code))}
	return nil
}

func (s *MemoryCodeStore) GetLarge(_ context.Context, id, version string, derivative metadata.Derivative) (*CodeObject, error) {
	key := codeKey(id, version, derivative)

	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.objs[key]
	if !ok {
		return nil, nil
	}
	if meta.ChunkCount == 0 {
		return s.getLocked(key)
	}

	chunks, ok := s.chunks[key]
	if !ok || len(chunks) != meta.ChunkCount {
		// A missing chunk yields a not-found result for the whole object.
		return nil, nil
	}
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c)
	}
	return &CodeObject{Data: buf.Bytes(), TotalSize: meta.TotalSize, ChunkCount: meta.ChunkCount}, nil
}

func (s *MemoryCodeStore) DeleteLarge(_ context.Context, id, version string, derivative metadata.Derivative) error {
	key := codeKey(id, version, derivative)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objs, key)
	delete(s.chunks, key)
	return nil
}
