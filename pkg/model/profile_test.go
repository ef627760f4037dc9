package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	tests := []struct {
		in   string
		host string
		port int
	}{
		{"vnc.example.com", "vnc.example.com", DefaultPort},
		{" vnc.example.com:5901 ", "vnc.example.com", 5901},
		{"10.0.0.7::5", "10.0.0.7", 5},
		{"[::1]:5902", "::1", 5902},
		{"[fe80::1]", "fe80::1", DefaultPort},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParseProfile(tt.in)
			require.NoError(t, err)
			assert.Equal(t, NewProfile(tt.host, tt.port), p)
		})
	}

	for _, bad := range []string{"", "  ", ":5900", "host:abc", "host:70000"} {
		_, err := ParseProfile(bad)
		assert.Error(t, err, bad)
	}
}

func TestProfileAddress(t *testing.T) {
	assert.Equal(t, "h:5900", NewProfile("h", 5900).Address())
	assert.Equal(t, "[::1]:5901", NewProfile("::1", 5901).Address())
}

func TestProfileIdentity(t *testing.T) {
	a := NewProfile("h", 1)
	b := NewProfile("h", 1)
	assert.True(t, a == b)
	b.UseSSH = true
	assert.False(t, a == b)

	assert.True(t, NewProfile(" \t", 1).IsBlank())
	assert.False(t, a.IsBlank())
	assert.Equal(t, "h:1", a.String())
}
