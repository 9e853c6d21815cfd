package backup

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionStats contains statistics about one compression pass
type CompressionStats struct {
	OriginalSize     int64           `json:"original_size"`
	CompressedSize   int64           `json:"compressed_size"`
	CompressionRatio float64         `json:"compression_ratio"`
	Algorithm        CompressionType `json:"algorithm"`
	Level            int             `json:"level"`
	Duration         time.Duration   `json:"duration"`
}

// Compressor compresses snapshot table bodies
type Compressor interface {
	Compress(data []byte, level int) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() CompressionType
	LevelRange() (min, max, def int)
}

// CompressionManager dispatches to the registered compressors
type CompressionManager struct {
	compressors map[CompressionType]Compressor
}

// NewCompressionManager creates a manager with gzip, lz4 and zstd registered
func NewCompressionManager() *CompressionManager {
	cm := &CompressionManager{
		compressors: make(map[CompressionType]Compressor),
	}
	for _, c := range []Compressor{gzipCompressor{}, lz4Compressor{}, zstdCompressor{}} {
		cm.compressors[c.Algorithm()] = c
	}
	return cm
}

// Compress compresses data. Out-of-range levels fall back to the algorithm default.
func (cm *CompressionManager) Compress(data []byte, algorithm CompressionType, level int) ([]byte, *CompressionStats, error) {
	start := time.Now()
	stats := &CompressionStats{
		OriginalSize: int64(len(data)),
		Algorithm:    algorithm,
	}

	if algorithm == CompressionTypeNone || algorithm == "" {
		stats.Algorithm = CompressionTypeNone
		stats.CompressedSize = int64(len(data))
		stats.CompressionRatio = 1.0
		return data, stats, nil
	}

	compressor, err := cm.compressor(algorithm)
	if err != nil {
		return nil, nil, err
	}

	min, max, def := compressor.LevelRange()
	if level < min || level > max {
		level = def
	}

	compressed, err := compressor.Compress(data, level)
	if err != nil {
		return nil, nil, err
	}

	stats.Level = level
	stats.CompressedSize = int64(len(compressed))
	stats.CompressionRatio = CalculateCompressionRatio(stats.OriginalSize, stats.CompressedSize)
	stats.Duration = time.Since(start)
	return compressed, stats, nil
}

// Decompress reverses Compress
func (cm *CompressionManager) Decompress(data []byte, algorithm CompressionType) ([]byte, error) {
	if algorithm == CompressionTypeNone || algorithm == "" {
		return data, nil
	}

	compressor, err := cm.compressor(algorithm)
	if err != nil {
		return nil, err
	}
	return compressor.Decompress(data)
}

func (cm *CompressionManager) compressor(algorithm CompressionType) (Compressor, error) {
	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}
	return compressor, nil
}

// CalculateCompressionRatio returns compressed/original
func CalculateCompressionRatio(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 1.0
	}
	return float64(compressedSize) / float64(originalSize)
}

type gzipCompressor struct{}

func (gzipCompressor) Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, NewCompressionError("failed to create gzip writer", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, NewCompressionError("failed to write gzip data", err)
	}
	if err := writer.Close(); err != nil {
		return nil, NewCompressionError("failed to close gzip writer", err)
	}
	return buf.Bytes(), nil
}

func (gzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, NewCompressionError("failed to create gzip reader", err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewCompressionError("failed to decompress gzip data", err)
	}
	return out, nil
}

func (gzipCompressor) Algorithm() CompressionType { return CompressionTypeGzip }

func (gzipCompressor) LevelRange() (int, int, int) {
	return gzip.BestSpeed, gzip.BestCompression, 6
}

type lz4Compressor struct{}

func (lz4Compressor) Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)

	// level 1 is fast mode, higher levels map onto lz4.Level2 through lz4.Level9
	if level > 1 {
		hc := lz4.CompressionLevel(1 << (7 + minInt(level, 9)))
		if err := writer.Apply(lz4.CompressionLevelOption(hc)); err != nil {
			return nil, NewCompressionError("failed to set lz4 level", err)
		}
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, NewCompressionError("failed to write lz4 data", err)
	}
	if err := writer.Close(); err != nil {
		return nil, NewCompressionError("failed to close lz4 writer", err)
	}
	return buf.Bytes(), nil
}

func (lz4Compressor) Decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, NewCompressionError("failed to decompress lz4 data", err)
	}
	return out, nil
}

func (lz4Compressor) Algorithm() CompressionType { return CompressionTypeLZ4 }

func (lz4Compressor) LevelRange() (int, int, int) { return 1, 9, 1 }

type zstdCompressor struct{}

func (zstdCompressor) Compress(data []byte, level int) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, NewCompressionError("failed to create zstd encoder", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (zstdCompressor) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, NewCompressionError("failed to create zstd decoder", err)
	}
	defer decoder.Close()

	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, NewCompressionError("failed to decompress zstd data", err)
	}
	return out, nil
}

func (zstdCompressor) Algorithm() CompressionType { return CompressionTypeZstd }

func (zstdCompressor) LevelRange() (int, int, int) { return 1, 22, 3 }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
