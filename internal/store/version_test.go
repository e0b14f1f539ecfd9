package store

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// failingBackend errors on every read and records deletes.
type failingBackend struct {
	MemoryStore
	deleted []string
	setErr  error
}

func (f *failingBackend) Get(context.Context, string) (string, error) {
	return "", errors.New("disk on fire")
}

func (f *failingBackend) Set(context.Context, string, string) error {
	return f.setErr
}

func (f *failingBackend) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func TestVersionStore_GetAfterSet(t *testing.T) {
	ctx := context.Background()
	vs := NewVersionStore(NewMemoryStore(), quietLogger())

	assert.Equal(t, "", vs.Get(ctx, "APP_VERSION"))

	vs.Set(ctx, "APP_VERSION", "1.0.0")
	assert.Equal(t, "1.0.0", vs.Get(ctx, "APP_VERSION"))

	vs.Set(ctx, "OTHER", "9.9.9")
	assert.Equal(t, "1.0.0", vs.Get(ctx, "APP_VERSION"), "keys are independent")
}

func TestVersionStore_StoresJSONString(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	vs := NewVersionStore(mem, quietLogger())

	vs.Set(ctx, "APP_VERSION", "3.2.1")

	raw, err := mem.Get(ctx, "APP_VERSION")
	require.NoError(t, err)
	assert.Equal(t, `"3.2.1"`, raw)
}

func TestVersionStore_CorruptValuesReset(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not json", "1.0.0"},
		{"truncated", `"1.0.`},
		{"number", "42"},
		{"object", `{"version":"1.0.0"}`},
		{"null", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mem := NewMemoryStore()
			require.NoError(t, mem.Set(ctx, "APP_VERSION", tt.raw))

			vs := NewVersionStore(mem, quietLogger())
			assert.Equal(t, "", vs.Get(ctx, "APP_VERSION"))

			_, err := mem.Get(ctx, "APP_VERSION")
			assert.ErrorIs(t, err, ErrNotFound, "corrupt entry is cleared")
		})
	}
}

func TestVersionStore_BackendErrors(t *testing.T) {
	ctx := context.Background()
	fb := &failingBackend{setErr: errors.New("read-only")}
	vs := NewVersionStore(fb, quietLogger())

	assert.Equal(t, "", vs.Get(ctx, "APP_VERSION"))
	assert.Equal(t, []string{"APP_VERSION"}, fb.deleted)

	assert.NotPanics(t, func() { vs.Set(ctx, "APP_VERSION", "1.0.0") })
}
