package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheme(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"s3://bucket/key":           "s3",
		"HTTPS://example.com/a.bin": "https",
		"http://host/x":             "http",
		"data/obj.bin":              "",
		"obj":                       "",
		"://nope":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Scheme(in), in)
	}
}

func TestMux_Routes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	def := NewMemory()
	def.Put("local.bin", []byte("local"))
	s3 := NewMemory()
	s3.Put("s3://bucket/remote.bin", []byte("remote bytes"))

	m := NewMux(def)
	m.Handle("S3", s3)
	assert.Equal(t, []string{"s3"}, m.Schemes())

	b, err := m.ReadRange(ctx, "local.bin", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("oca"), b)

	n, err := m.Size(ctx, "s3://bucket/remote.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.Equal(t, int64(1), s3.SizeCalls())
	assert.Zero(t, def.SizeCalls())

	_, err = m.Size(ctx, "gs://bucket/x")
	assert.Error(t, err)

	_, err = NewMux(nil).Size(ctx, "plain")
	assert.Error(t, err)
}

func TestMemory_ReadRange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := NewMemory()
	m.Put("obj", []byte("0123456789"))

	b, err := m.ReadRange(ctx, "obj", 8, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("89"), b, "reads past the end are short")

	b, err = m.ReadRange(ctx, "obj", 20, 5)
	require.NoError(t, err)
	assert.Empty(t, b)

	_, err = m.ReadRange(ctx, "missing", 0, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, int64(3), m.Reads())
	assert.Equal(t, int64(2), m.ReadBytes())
}
