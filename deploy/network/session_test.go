package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_resolveUploadLocation(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		location string
		want     string
		wantErr  bool
	}{
		{
			name:     "absolute location is kept",
			base:     "https://app.example.com/api/3.0",
			location: "https://upload.example.com/sessions/abc123",
			want:     "https://upload.example.com/sessions/abc123",
		},
		{
			name:     "relative location resolves against API origin",
			base:     "https://app.example.com/api/3.0",
			location: "/sessions/abc123",
			want:     "https://app.example.com/sessions/abc123",
		},
		{
			name:     "legacy API prefix is rewritten to the versioned path",
			base:     "https://app.example.com/api/3.0",
			location: "/API/sessions/abc123",
			want:     "https://app.example.com/api/3.0/sessions/abc123",
		},
		{
			name:     "query string survives resolution",
			base:     "https://app.example.com/api/3.0",
			location: "/sessions/abc123?upload_id=42",
			want:     "https://app.example.com/sessions/abc123?upload_id=42",
		},
		{
			name:     "empty location",
			base:     "https://app.example.com/api/3.0",
			location: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveUploadLocation(tt.base, tt.location)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_newChunkIDSession(t *testing.T) {
	a, err := newChunkIDSession(24*1024*1024, 100*1024*1024)
	require.NoError(t, err)
	b, err := newChunkIDSession(24*1024*1024, 100*1024*1024)
	require.NoError(t, err)

	assert.Equal(t, ChunkIDFinalize, a.Variant)
	assert.NotEmpty(t, a.UploadID)
	assert.NotEqual(t, a.UploadID, b.UploadID, "upload ids must be unique per session")
	assert.Empty(t, a.UploadURL)
}

func TestProtocolVariantString(t *testing.T) {
	assert.Equal(t, "byte-range", ByteRangeResumable.String())
	assert.Equal(t, "chunk-id", ChunkIDFinalize.String())
}
