package att

import (
	"bytes"
	"errors"
	"testing"
)

func TestPrepareQueueReassembly(t *testing.T) {
	q := newPrepareQueue(0)
	if q.limit != DefaultPrepareQueueLimit {
		t.Errorf("limit = %d, want %d", q.limit, DefaultPrepareQueueLimit)
	}

	steps := []struct {
		h      Handle
		offset uint16
		value  string
	}{
		{0x10, 0, "hello "},
		{0x20, 4, "xy"},
		{0x10, 6, "world"},
		{0x20, 6, "z"},
	}
	for _, s := range steps {
		if err := q.Add(s.h, s.offset, []byte(s.value)); err != nil {
			t.Fatalf("Add(%s, %d) failed: %v", s.h, s.offset, err)
		}
	}

	got := q.Values()
	if len(got) != 2 {
		t.Fatalf("Values() returned %d entries, want 2", len(got))
	}
	if got[0].Handle != 0x10 || got[0].Offset != 0 || string(got[0].Value) != "hello world" {
		t.Errorf("Values()[0] = %+v", got[0])
	}
	if got[1].Handle != 0x20 || got[1].Offset != 4 || !bytes.Equal(got[1].Value, []byte("xyz")) {
		t.Errorf("Values()[1] = %+v", got[1])
	}

	q.Reset()
	if q.Len() != 0 || len(q.Values()) != 0 {
		t.Error("Reset left fragments queued")
	}
}

func TestPrepareQueueErrors(t *testing.T) {
	q := newPrepareQueue(2)

	if err := q.Add(1, 0, []byte{1, 2}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := q.Add(1, 3, []byte{3}); !errors.Is(err, ErrInvalidOffset) {
		t.Errorf("gap error = %v, want ErrInvalidOffset", err)
	}
	if err := q.Add(1, 2, []byte{3}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := q.Add(2, 0, []byte{4}); !errors.Is(err, ErrPrepareQueueFull) {
		t.Errorf("full error = %v, want ErrPrepareQueueFull", err)
	}
}

func TestPrepareQueueCopiesValues(t *testing.T) {
	q := newPrepareQueue(4)
	buf := []byte{1, 2}
	q.Add(1, 0, buf)
	buf[0] = 9

	if v := q.Values()[0].Value; v[0] != 1 {
		t.Errorf("queued value aliased caller buffer: %x", v)
	}
}
