package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := New(context.Background(), Options{Addr: srv.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	srv.CheckGet(t, "k", "v")
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := New(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}

func TestOptionsAsynq(t *testing.T) {
	opt := Options{Addr: "redis:6379", Password: "s3cret", DB: 2}.Asynq()
	assert.Equal(t, "redis:6379", opt.Addr)
	assert.Equal(t, "s3cret", opt.Password)
	assert.Equal(t, 2, opt.DB)
}
