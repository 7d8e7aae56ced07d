package kafka

import (
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
)

// Envelope wraps every published message with a delivery identity. The
// payload stays opaque to the transport.
type Envelope struct {
	ID        string
	Name      string
	EmittedAt time.Time
	Payload   jx.Raw
}

// encodeEnvelope wraps payload with a fresh uuid and emission timestamp.
func encodeEnvelope(name string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(uuid.NewString()) })
		e.Field("name", func(e *jx.Encoder) { e.Str(name) })
		e.Field("emitted_at", func(e *jx.Encoder) { e.Str(time.Now().UTC().Format(time.RFC3339Nano)) })
		e.Field("payload", func(e *jx.Encoder) { e.Raw(body) })
	})
	return e.Bytes(), nil
}

// decodeEnvelope parses a wire message back into an Envelope.
func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			s, err := d.Str()
			env.ID = s
			return err
		case "name":
			s, err := d.Str()
			env.Name = s
			return err
		case "emitted_at":
			s, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return errors.Wrap(err, "parse emitted_at")
			}
			env.EmittedAt = t
			return nil
		case "payload":
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			env.Payload = append(jx.Raw(nil), raw...)
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return Envelope{}, errors.Wrap(err, "decode envelope")
	}
	if env.ID == "" || env.Name == "" {
		return Envelope{}, errors.New("incomplete envelope")
	}
	return env, nil
}
