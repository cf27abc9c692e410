package store

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/aweris/wallcas/internal/compression"
)

// envelope is the on-disk form of an entry. The key is not repeated inside;
// it is the record's storage key.
type envelope struct {
	Body       []byte `cbor:"1,keyasint"`
	StoredAt   int64  `cbor:"2,keyasint"`
	Compressed bool   `cbor:"3,keyasint,omitempty"`
}

// layerRecord is an entry packed for replication, where the key has to
// travel with the value.
type layerRecord struct {
	Key      []byte `cbor:"1,keyasint"`
	Body     []byte `cbor:"2,keyasint"`
	StoredAt int64  `cbor:"3,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// Codec encodes entries for a backend, compressing bodies when enabled.
type Codec struct {
	compressor *compression.Compressor
}

// NewCodec creates a codec. A nil compressor stores bodies as-is.
func NewCodec(c *compression.Compressor) *Codec {
	return &Codec{compressor: c}
}

// Encode serializes e without its key.
func (c *Codec) Encode(e Entry) ([]byte, error) {
	env := envelope{Body: e.Body, StoredAt: e.StoredAt.UnixNano()}
	if c.compressor != nil {
		env.Body, env.Compressed = c.compressor.Compress(e.Body)
	}
	return encMode.Marshal(env)
}

// Decode deserializes data stored under key.
func (c *Codec) Decode(key Key, data []byte) (Entry, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %w", ErrCorrupt, key.Hex(), err)
	}
	body := env.Body
	if env.Compressed {
		if c.compressor == nil {
			return Entry{}, fmt.Errorf("%w: %s: compressed body without compressor", ErrCorrupt, key.Hex())
		}
		var err error
		body, err = c.compressor.Decompress(env.Body)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %s: %w", ErrCorrupt, key.Hex(), err)
		}
	}
	return Entry{Key: key, Body: body, StoredAt: time.Unix(0, env.StoredAt)}, nil
}

// PackEntries serializes a batch of entries with their keys, for transfer.
func PackEntries(entries []Entry) ([]byte, error) {
	records := make([]layerRecord, len(entries))
	for i, e := range entries {
		e := e
		records[i] = layerRecord{Key: e.Key[:], Body: e.Body, StoredAt: e.StoredAt.UnixNano()}
	}
	return encMode.Marshal(records)
}

// UnpackEntries reverses PackEntries.
func UnpackEntries(data []byte) ([]Entry, error) {
	var records []layerRecord
	if err := decMode.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unpack entries: %w", err)
	}
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		if len(r.Key) != KeySize {
			return nil, fmt.Errorf("unpack entries: bad key length %d", len(r.Key))
		}
		var k Key
		copy(k[:], r.Key)
		entries = append(entries, Entry{Key: k, Body: r.Body, StoredAt: time.Unix(0, r.StoredAt)})
	}
	return entries, nil
}
