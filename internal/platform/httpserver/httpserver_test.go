package httpserver

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docguard/internal/platform/config"
)

func TestRequireLoopback(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{addr: "127.0.0.1:7420"},
		{addr: "[::1]:7420"},
		{addr: "localhost:7420"},
		{addr: "0.0.0.0:7420", wantErr: true},
		{addr: ":7420", wantErr: true},
		{addr: "192.168.1.10:7420", wantErr: true},
		{addr: "example.com:7420", wantErr: true},
		{addr: "127.0.0.1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := RequireLoopback(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNew(t *testing.T) {
	h := http.NewServeMux()

	srv, err := New(config.Server{Addr: "127.0.0.1:0"}, h)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", srv.Addr)
	assert.Zero(t, srv.WriteTimeout)
	assert.NotZero(t, srv.ReadHeaderTimeout)

	_, err = New(config.Server{Addr: "0.0.0.0:7420"}, h)
	assert.Error(t, err)
}
