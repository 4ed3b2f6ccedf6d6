package convert

import (
	"context"

	"github.com/joouha/termview/pkg/cache"
)

// Persistent conversion outputs are stored with a one-byte kind prefix so
// text and binary payloads round-trip without a separate metadata record.
// Only byte and text payloads are persisted; images, styled lines and
// opaque values are cheap to recompute or not serializable.

const (
	persistKindBytes = 'b'
	persistKindText  = 't'
)

func persistKey(hash string, key convKey) string {
	return cache.Key("convert", hash, key.to, key.cols, key.rows, key.fg, key.bg)
}

func (r *Registry) persistentFetch(ctx context.Context, hash string, key convKey) (Payload, bool) {
	if r.persist == nil {
		return Payload{}, false
	}
	raw, ok, err := r.persist.Get(ctx, persistKey(hash, key))
	if err != nil {
		r.logger.Debug("Persistent cache read failed", "err", err)
		return Payload{}, false
	}
	if !ok || len(raw) == 0 {
		return Payload{}, false
	}
	switch raw[0] {
	case persistKindBytes:
		return Bytes(raw[1:]), true
	case persistKindText:
		return Text(string(raw[1:])), true
	default:
		return Payload{}, false
	}
}

func (r *Registry) persistentStore(ctx context.Context, hash string, key convKey, p Payload) {
	if r.persist == nil {
		return
	}
	var raw []byte
	if b, ok := p.Bytes(); ok {
		raw = append([]byte{persistKindBytes}, b...)
	} else if s, ok := p.Text(); ok {
		raw = append([]byte{persistKindText}, s...)
	} else {
		return
	}
	if err := r.persist.Set(ctx, persistKey(hash, key), raw, r.persistTTL); err != nil {
		r.logger.Debug("Persistent cache write failed", "err", err)
	}
}
