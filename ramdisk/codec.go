package ramdisk

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Decompress returns the raw cpio payload and the compression it was stored
// with. Uncompressed cpio is returned as is.
func Decompress(data []byte) ([]byte, Format, error) {
	f := Detect(data)

	var r io.Reader
	switch f {
	case FormatCPIO:
		return data, f, nil

	case FormatGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, f, err
		}
		defer zr.Close()
		r = zr

	case FormatLZ4, FormatLZ4Legacy:
		r = lz4.NewReader(bytes.NewReader(data))

	case FormatXZ:
		zr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, f, err
		}
		r = zr

	case FormatZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, f, err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		return out, f, err

	default:
		return nil, f, ErrorUnknownFormat
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, f, fmt.Errorf("%s: %w", f, err)
	}
	return out, f, nil
}

// Compress stores a raw payload with the given format. Legacy LZ4 is what
// `lz4 -l` produces and what the MTK kernel expects for vendor ramdisks.
func Compress(data []byte, f Format) ([]byte, error) {
	var buf bytes.Buffer

	switch f {
	case FormatCPIO:
		return data, nil

	case FormatGzip:
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}

	case FormatLZ4, FormatLZ4Legacy:
		zw := lz4.NewWriter(&buf)
		options := []lz4.Option{lz4.CompressionLevelOption(lz4.Level9)}
		if f == FormatLZ4Legacy {
			options = append(options, lz4.LegacyOption(true))
		}
		if err := zw.Apply(options...); err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}

	case FormatXZ:
		/* The kernel decompressor only understands CRC32 checks */
		zw, err := xz.WriterConfig{CheckSum: xz.CRC32}.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}

	case FormatZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil

	default:
		return nil, ErrorUnknownFormat
	}

	return buf.Bytes(), nil
}
