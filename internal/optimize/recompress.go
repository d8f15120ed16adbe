package optimize

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	kflate "github.com/klauspost/compress/flate"
	kgzip "github.com/klauspost/compress/gzip"
)

// ErrUnsupportedAlgorithm is returned when Options.Algorithm names a
// compression scheme recompress doesn't implement.
type ErrUnsupportedAlgorithm struct{ Algorithm string }

func (e *ErrUnsupportedAlgorithm) Error() string {
	return fmt.Sprintf("optimize: unsupported recompression algorithm %q", e.Algorithm)
}

// recompress rebuilds a ZIP archive from the surviving files under the
// algorithm opts.Algorithm names. "deflate" (also used when Algorithm is empty) uses
// klauspost/compress/flate registered as the archive's native Deflate
// method, which supports finer-grained compression levels than
// archive/zip's built-in deflate. "gzip" and "brotli" instead compress
// each entry's bytes themselves before storing them uncompressed
// (zip.Store) in the archive, since neither is one of the two methods the
// ZIP format defines.
func recompress(files []entryFile, opts Options) ([]byte, error) {
	switch opts.Algorithm {
	case "", "deflate":
		return recompressDeflate(files, opts.CompressionLevel)
	case "gzip":
		return recompressPreEncoded(files, func(w io.Writer) (io.WriteCloser, error) {
			return kgzip.NewWriterLevel(w, gzipLevel(opts.CompressionLevel))
		})
	case "brotli":
		return recompressPreEncoded(files, func(w io.Writer) (io.WriteCloser, error) {
			return brotli.NewWriterLevel(w, brotliQuality(opts.CompressionLevel)), nil
		})
	default:
		return nil, &ErrUnsupportedAlgorithm{Algorithm: opts.Algorithm}
	}
}

func recompressDeflate(files []entryFile, level int) ([]byte, error) {
	if level <= 0 {
		level = kflate.DefaultCompression
	}

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return kflate.NewWriter(w, level)
	})

	for _, f := range files {
		header := &zip.FileHeader{Name: f.name, Method: zip.Deflate}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("create entry %s: %w", f.name, err)
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, fmt.Errorf("write entry %s: %w", f.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

// recompressPreEncoded pre-compresses each entry's bytes with newEncoder
// and stores the result uncompressed in the archive, since gzip and
// brotli aren't registerable as archive/zip compressor methods.
func recompressPreEncoded(files []entryFile, newEncoder func(io.Writer) (io.WriteCloser, error)) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	for _, f := range files {
		var encoded bytes.Buffer
		enc, err := newEncoder(&encoded)
		if err != nil {
			return nil, fmt.Errorf("create encoder for %s: %w", f.name, err)
		}
		if _, err := enc.Write(f.data); err != nil {
			return nil, fmt.Errorf("encode entry %s: %w", f.name, err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("finalize entry %s: %w", f.name, err)
		}

		header := &zip.FileHeader{Name: f.name, Method: zip.Store}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("create entry %s: %w", f.name, err)
		}
		if _, err := w.Write(encoded.Bytes()); err != nil {
			return nil, fmt.Errorf("write entry %s: %w", f.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

// gzipLevel clamps level into klauspost/compress/gzip's 1-9 range,
// defaulting to its own DefaultCompression when unset.
func gzipLevel(level int) int {
	if level <= 0 {
		return kgzip.DefaultCompression
	}
	if level > 9 {
		return 9
	}
	return level
}

// brotliQuality maps the 1-9 compression level scale onto brotli's 0-11
// quality scale.
func brotliQuality(level int) int {
	if level <= 0 {
		return 6
	}
	quality := level + 2
	if quality > 11 {
		return 11
	}
	return quality
}
