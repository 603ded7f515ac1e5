// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package archive

import (
	"os"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/saferwall/snarc/codec"
)

// Options configures an Archive's collaborators. Expressed as functional
// options since every field here has a meaningful default.
type Options struct {
	Decompressor       codec.Decompressor
	Compressor         codec.Compressor
	Hasher             codec.Hasher
	CompressionEnabled bool
	Logger             log.Logger

	logger *log.Helper
}

// Option configures an Options value.
type Option func(*Options)

// WithDecompressor overrides the default zstd Decompressor.
func WithDecompressor(d codec.Decompressor) Option {
	return func(o *Options) { o.Decompressor = d }
}

// WithCompressor overrides the default zstd Compressor.
func WithCompressor(c codec.Compressor) Option {
	return func(o *Options) { o.Compressor = c }
}

// WithHasher overrides the default placeholder Hash40 implementation.
// Callers operating on real archives must supply the genuine algorithm.
func WithHasher(h codec.Hasher) Option {
	return func(o *Options) { o.Hasher = h }
}

// WithCompressionDisabled writes table sections uncompressed, useful for
// debugging a round trip without zstd in the loop.
func WithCompressionDisabled() Option {
	return func(o *Options) { o.CompressionEnabled = false }
}

// WithLogger overrides the default stderr logger.
func WithLogger(l log.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithQuietLogger wraps the given logger to only surface errors.
func WithQuietLogger(l log.Logger) Option {
	return func(o *Options) { o.Logger = log.NewFilter(l, log.FilterLevel(log.LevelError)) }
}

func newOptions(opts ...Option) *Options {
	o := &Options{
		Decompressor:       codec.Shared(),
		Compressor:         codec.ZstdCodec{},
		Hasher:             codec.NewPlaceholderHasher(),
		CompressionEnabled: true,
		Logger:             log.NewStdLogger(os.Stderr),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = log.NewHelper(o.Logger)
	return o
}
