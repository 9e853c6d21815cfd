package backup

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"mrp-backup/internal/schema"
)

// snapshotMagic opens every snapshot file
var snapshotMagic = []byte("MRPSNAP1")

const maxHeaderSize = 1 << 20

// archiveCodec turns a dataset into snapshot file bytes and back.
//
// Layout: magic(8) | header length uint32 BE | header JSON | payload.
// The payload is the compressed dataset JSON, sealed with the header as
// additional data when encrypted, so a rewritten header fails authentication.
type archiveCodec struct {
	compression *CompressionManager
	encryption  *EncryptionManager
	level       int
}

func newArchiveCodec(compression *CompressionManager, encryption *EncryptionManager, level int) *archiveCodec {
	return &archiveCodec{compression: compression, encryption: encryption, level: level}
}

// encode serializes dataset under meta. meta.Compression, Encrypted and
// KeyDerivation must be final before the call since they are authenticated.
func (c *archiveCodec) encode(meta *SnapshotMetadata, dataset *schema.Dataset) ([]byte, error) {
	body, err := json.Marshal(dataset)
	if err != nil {
		return nil, NewIOError("failed to serialize dataset", err)
	}

	payload, _, err := c.compression.Compress(body, meta.Compression, c.level)
	if err != nil {
		return nil, err
	}

	header, err := json.Marshal(meta)
	if err != nil {
		return nil, NewIOError("failed to serialize snapshot header", err)
	}
	if len(header) > maxHeaderSize {
		return nil, NewValidationError("snapshot header is too large", nil)
	}

	if meta.Encrypted {
		payload, _, err = c.encryption.Encrypt(payload, header)
		if err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(snapshotMagic) + 4 + len(header) + len(payload))
	buf.Write(snapshotMagic)
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(header))); err != nil {
		return nil, NewIOError("failed to write header length", err)
	}
	buf.Write(header)
	buf.Write(payload)
	return buf.Bytes(), nil
}

// decode reverses encode
func (c *archiveCodec) decode(data []byte) (*SnapshotMetadata, *schema.Dataset, error) {
	reader := bytes.NewReader(data)
	meta, header, err := readHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	payload := data[len(data)-reader.Len():]

	if meta.Encrypted {
		if c.encryption == nil || !c.encryption.Configured() {
			return nil, nil, NewDecryptionError("snapshot is encrypted but no encryption key is configured", nil)
		}
		payload, err = c.encryption.DecryptWith(payload, header, meta.KeyDerivation)
		if err != nil {
			return nil, nil, err
		}
	}

	body, err := c.compression.Decompress(payload, meta.Compression)
	if err != nil {
		return nil, nil, NewIntegrityError("snapshot payload cannot be decompressed", err)
	}

	dataset, err := schema.DecodeDataset(body)
	if err != nil {
		return nil, nil, NewIntegrityError("snapshot payload is not a valid dataset", err)
	}
	return meta, dataset, nil
}

// readHeader reads the unencrypted metadata header. It returns the raw header
// bytes as well because they are the AEAD additional data.
func readHeader(r io.Reader) (*SnapshotMetadata, []byte, error) {
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, snapshotMagic) {
		return nil, nil, NewIntegrityError("not a snapshot file: bad magic", err)
	}

	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, nil, NewIntegrityError("snapshot header length is truncated", err)
	}
	if length == 0 || length > maxHeaderSize {
		return nil, nil, NewIntegrityError(fmt.Sprintf("snapshot header length %d is out of range", length), nil)
	}

	header := make([]byte, length)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, nil, NewIntegrityError("snapshot header is truncated", err)
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(header, &meta); err != nil {
		return nil, nil, NewIntegrityError("snapshot header is not valid JSON", err)
	}
	if meta.FormatVersion < 1 || meta.FormatVersion > FormatVersion {
		return nil, nil, NewIntegrityError(fmt.Sprintf("unsupported snapshot format version %d", meta.FormatVersion), nil)
	}
	return &meta, header, nil
}
