package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		password     string
		wantAddr     string
		wantPassword string
		wantDB       int
		wantErr      bool
	}{
		{name: "bare address", url: "localhost:6379", password: "pw", wantAddr: "localhost:6379", wantPassword: "pw"},
		{name: "redis url", url: "redis://:secret@cache:6380/2", wantAddr: "cache:6380", wantPassword: "secret", wantDB: 2},
		{name: "explicit password wins", url: "redis://:secret@cache:6380/0", password: "override", wantAddr: "cache:6380", wantPassword: "override"},
		{name: "empty", url: "", wantErr: true},
		{name: "bad scheme", url: "http://cache:6379", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := clientOptions(tt.url, tt.password)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, opts.Addr)
			assert.Equal(t, tt.wantPassword, opts.Password)
			assert.Equal(t, tt.wantDB, opts.DB)
		})
	}
}
