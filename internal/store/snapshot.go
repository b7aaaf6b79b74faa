package store

import (
	"io"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/bianshufei/meetnow/internal/domain/order"
)

// WriteSnapshot encodes every stored order as a JSON array. The encoding is
// stable enough to survive restarts; it is not a wire protocol.
func (s *Store) WriteSnapshot(w io.Writer) error {
	s.mu.Lock()
	orders := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, *o)
	}
	s.mu.Unlock()

	var e jx.Encoder
	e.ArrStart()
	for i := range orders {
		encodeOrder(&e, &orders[i])
	}
	e.ArrEnd()

	if _, err := w.Write(e.Bytes()); err != nil {
		return errors.Wrap(err, "write snapshot")
	}
	return nil
}

// ReadSnapshot decodes a snapshot previously produced by WriteSnapshot and
// inserts every order. Orders whose id is already present are rejected, so
// loading into a non-empty store fails rather than silently merging.
func (s *Store) ReadSnapshot(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "read snapshot")
	}

	d := jx.DecodeBytes(data)
	return d.Arr(func(d *jx.Decoder) error {
		o, err := decodeOrder(d)
		if err != nil {
			return err
		}
		if err := s.Insert(o); err != nil {
			return errors.Wrapf(err, "insert order %s", o.ID)
		}
		return nil
	})
}

// SaveFile writes a pgzip-compressed snapshot to path, replacing any
// existing file atomically via a temp file rename.
func (s *Store) SaveFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create snapshot file")
	}

	zw := pgzip.NewWriter(f)
	if err := s.WriteSnapshot(zw); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.Wrap(err, "close gzip writer")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "close snapshot file")
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "replace snapshot file")
	}
	return nil
}

// LoadFile reads a pgzip-compressed snapshot from path. A missing file is
// not an error: the store simply starts empty.
func (s *Store) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "open snapshot file")
	}
	defer f.Close()

	zr, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "open gzip reader")
	}
	defer zr.Close()

	return s.ReadSnapshot(zr)
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("creator_id")
	e.Str(o.CreatorID)
	if o.TakerID != "" {
		e.FieldStart("taker_id")
		e.Str(o.TakerID)
	}
	e.FieldStart("scheduled_time")
	e.Str(o.ScheduledTime.UTC().Format(time.RFC3339Nano))
	e.FieldStart("location")
	e.Str(o.Location)
	e.FieldStart("amount")
	e.Str(o.Amount.String())
	e.FieldStart("description")
	e.Str(o.Description)
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

func decodeOrder(d *jx.Decoder) (order.Order, error) {
	var o order.Order
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			o.ID = v
			return err
		case "status":
			v, err := d.Str()
			o.Status = order.Status(v)
			return err
		case "creator_id":
			v, err := d.Str()
			o.CreatorID = v
			return err
		case "taker_id":
			v, err := d.Str()
			o.TakerID = v
			return err
		case "scheduled_time":
			t, err := decodeTime(d)
			o.ScheduledTime = t
			return err
		case "location":
			v, err := d.Str()
			o.Location = v
			return err
		case "amount":
			v, err := d.Str()
			if err != nil {
				return err
			}
			amt, err := decimal.NewFromString(v)
			if err != nil {
				return errors.Wrapf(err, "parse amount %q", v)
			}
			o.Amount = amt
			return nil
		case "description":
			v, err := d.Str()
			o.Description = v
			return err
		case "created_at":
			t, err := decodeTime(d)
			o.CreatedAt = t
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return order.Order{}, errors.Wrap(err, "decode order")
	}
	return o, nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	v, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse time %q", v)
	}
	return t, nil
}
