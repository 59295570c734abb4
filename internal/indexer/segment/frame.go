// Package segment frames persisted index artifacts. Every artifact is a
// fixed 64-byte header, a JSON or YAML payload and a crc32 footer, so a
// truncated or mixed-up artifact is detected before it is decoded. Large
// payloads are stored zstd-compressed.
package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
)

// MagicBytes identifies a framed artifact ("BM25").
const (
	MagicBytes    uint32 = 0x424d3235
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 8
	maxNameLen    int    = 32

	// CompressThreshold is the smallest payload Encode tries to compress.
	CompressThreshold = 4 << 10
)

// Codec selects the payload encoding.
type Codec uint32

const (
	CodecJSON Codec = 1
	CodecYAML Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecJSON:
		return "json"
	case CodecYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// Compression identifies how the stored payload is compressed.
type Compression uint16

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Header is the 64-byte header written at the start of every artifact.
//
//	[0:4]   magic
//	[4:8]   format version
//	[8:12]  codec
//	[12:14] name length
//	[14:16] compression
//	[16:24] stored payload length
//	[24:32] encoded payload length before compression
//	[32:64] artifact name, zero padded
type Header struct {
	Magic       uint32
	Version     uint32
	Codec       Codec
	Compression Compression
	Name        string
	PayloadLen  uint64
	RawLen      uint64
}

// The zstd encoder and decoder are shared; both are safe for concurrent use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Encode marshals v with codec and frames it under name. Payloads of at
// least CompressThreshold bytes are compressed when that makes them smaller.
func Encode(name string, codec Codec, v any) ([]byte, error) {
	if len(name) == 0 || len(name) > maxNameLen {
		return nil, apperrors.Invalidf("artifact name %q must be 1-%d bytes", name, maxNameLen)
	}
	var raw []byte
	var err error
	switch codec {
	case CodecJSON:
		raw, err = json.Marshal(v)
	case CodecYAML:
		raw, err = yaml.Marshal(v)
	default:
		return nil, apperrors.Invalidf("unknown codec %d", codec)
	}
	if err != nil {
		return nil, apperrors.Invalidf("marshaling artifact %q: %v", name, err)
	}

	payload, comp := raw, CompressionNone
	if len(raw) >= CompressThreshold {
		if compressed := zstdEncoder.EncodeAll(raw, nil); len(compressed) < len(raw) {
			payload, comp = compressed, CompressionZstd
		}
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(payload)+FooterSize)
	binary.LittleEndian.PutUint32(buf[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(buf[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(codec))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(len(name)))
	binary.LittleEndian.PutUint16(buf[14:16], uint16(comp))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(len(payload)))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(len(raw)))
	copy(buf[32:32+maxNameLen], name)
	buf = append(buf, payload...)

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint32(footer[4:8], MagicBytes)
	return append(buf, footer...), nil
}

// ReadHeader parses and checks the header of a framed artifact.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize+FooterSize {
		return Header{}, apperrors.Corruptf("artifact too short: %d bytes", len(data))
	}
	h := Header{
		Magic:       binary.LittleEndian.Uint32(data[0:4]),
		Version:     binary.LittleEndian.Uint32(data[4:8]),
		Codec:       Codec(binary.LittleEndian.Uint32(data[8:12])),
		Compression: Compression(binary.LittleEndian.Uint16(data[14:16])),
		PayloadLen:  binary.LittleEndian.Uint64(data[16:24]),
		RawLen:      binary.LittleEndian.Uint64(data[24:32]),
	}
	if h.Magic != MagicBytes {
		return Header{}, apperrors.Corruptf("bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return Header{}, apperrors.Corruptf("unsupported format version %d", h.Version)
	}
	nameLen := int(binary.LittleEndian.Uint16(data[12:14]))
	if nameLen == 0 || nameLen > maxNameLen {
		return Header{}, apperrors.Corruptf("bad artifact name length %d", nameLen)
	}
	h.Name = string(data[32 : 32+nameLen])
	if h.PayloadLen != uint64(len(data)-HeaderSize-FooterSize) {
		return Header{}, apperrors.Corruptf("artifact %q: payload length %d does not match %d bytes on disk",
			h.Name, h.PayloadLen, len(data)-HeaderSize-FooterSize)
	}
	if h.Compression == CompressionNone && h.RawLen != h.PayloadLen {
		return Header{}, apperrors.Corruptf("artifact %q: raw length %d differs from uncompressed payload %d",
			h.Name, h.RawLen, h.PayloadLen)
	}
	return h, nil
}

// Decode verifies the frame of an artifact expected to be called name and
// unmarshals its payload into v.
func Decode(name string, data []byte, v any) error {
	h, err := ReadHeader(data)
	if err != nil {
		return err
	}
	if h.Name != name {
		return apperrors.Corruptf("expected artifact %q, found %q", name, h.Name)
	}
	payload := data[HeaderSize : len(data)-FooterSize]
	footer := data[len(data)-FooterSize:]
	if binary.LittleEndian.Uint32(footer[4:8]) != MagicBytes {
		return apperrors.Corruptf("artifact %q: bad footer", name)
	}
	if want, got := binary.LittleEndian.Uint32(footer[0:4]), crc32.ChecksumIEEE(payload); want != got {
		return apperrors.Corruptf("artifact %q: checksum mismatch %08x != %08x", name, got, want)
	}

	raw, err := decompress(h, payload)
	if err != nil {
		return err
	}
	switch h.Codec {
	case CodecJSON:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(v)
	case CodecYAML:
		err = yaml.Unmarshal(raw, v)
	default:
		return apperrors.Corruptf("artifact %q: unknown codec %d", name, h.Codec)
	}
	if err != nil {
		return apperrors.Corruptf("artifact %q: parsing payload: %v", name, err)
	}
	return nil
}

func decompress(h Header, payload []byte) ([]byte, error) {
	switch h.Compression {
	case CompressionNone:
		return payload, nil
	case CompressionZstd:
		raw, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, apperrors.Corruptf("artifact %q: zstd: %v", h.Name, err)
		}
		if uint64(len(raw)) != h.RawLen {
			return nil, apperrors.Corruptf("artifact %q: decompressed %d bytes, header says %d",
				h.Name, len(raw), h.RawLen)
		}
		return raw, nil
	default:
		return nil, apperrors.Corruptf("artifact %q: unknown compression %d", h.Name, h.Compression)
	}
}
