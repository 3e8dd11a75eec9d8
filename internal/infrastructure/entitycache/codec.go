// Package entitycache holds what the entity data cache backends share: the
// blob codec and expiry arithmetic.
package entitycache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/ersonp/tidstore/internal/domain/entities"
)

// Blob format markers. The first byte of every encoded blob says how the
// rest is stored, so a cache written with compression on stays readable
// after it is turned off and the other way round.
const (
	formatJSON byte = 'j'
	formatZstd byte = 'z'
)

var errEmptyBlob = errors.New("empty cache blob")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Codec turns EntityData into cache blobs and back.
type Codec struct {
	compress bool
}

// NewCodec returns a codec. With compress set, blobs are zstd compressed.
func NewCodec(compress bool) Codec {
	return Codec{compress: compress}
}

// Encode serializes data.
func (c Codec) Encode(data entities.EntityData) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding entity %d: %w", data.ID, err)
	}
	if !c.compress {
		return append([]byte{formatJSON}, raw...), nil
	}

	enc := getZstdEncoder()
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(raw, []byte{formatZstd}), nil
}

// Decode reads a blob written by Encode, whatever the compression setting
// of the codec that wrote it.
func (c Codec) Decode(blob []byte) (entities.EntityData, error) {
	if len(blob) == 0 {
		return entities.EntityData{}, errEmptyBlob
	}

	raw := blob[1:]
	switch blob[0] {
	case formatJSON:
	case formatZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		var err error
		raw, err = dec.DecodeAll(raw, nil)
		if err != nil {
			return entities.EntityData{}, fmt.Errorf("decompressing cache blob: %w", err)
		}
	default:
		return entities.EntityData{}, fmt.Errorf("unknown cache blob format %q", blob[0])
	}

	var data entities.EntityData
	if err := json.Unmarshal(raw, &data); err != nil {
		return entities.EntityData{}, fmt.Errorf("decoding cache blob: %w", err)
	}
	return data, nil
}

// ExpiresAt returns when an entry set at now with the given ttl expires.
// The zero time means never.
func ExpiresAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// Expired reports whether an entry with the given expiry is gone at now.
func Expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

// Miss builds the error returned for a cache miss.
func Miss(id entities.Tid, reason string) error {
	return fmt.Errorf("entity %d %s: %w", id, reason, entities.ErrEntityNotInCache)
}
