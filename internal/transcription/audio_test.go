package transcription

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMimeType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"webm", "audio/webm", false},
		{"audio/webm;codecs=opus", "audio/webm", false},
		{"AUDIO/MPEG", "audio/mpeg", false},
		{"mp3", "audio/mp3", false},
		{"audio/x-wav", "audio/wav", false},
		{"audio/ogg", "audio/ogg", false},
		{"flac", "audio/flac", false},
		{"audio/mp4", "audio/mp4", false},
		{"video/mp4", "", true},
		{"video/webm", "", true},
		{"audio/aac", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeMimeType(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedMimeType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAudio_Filename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "voice-note.mp3", Audio{MimeType: "audio/mpeg"}.Filename())
	assert.Equal(t, "voice-note.webm", Audio{MimeType: "audio/webm"}.Filename())
}

func TestLoader_Inline(t *testing.T) {
	t.Parallel()

	payload := []byte("RIFF....WAVE")
	encoded := base64.StdEncoding.EncodeToString(payload)
	l := NewLoader(time.Second, URLPolicy{})

	a, err := l.Load(context.Background(), "", encoded, "wav")
	require.NoError(t, err)
	assert.Equal(t, payload, a.Data)
	assert.Equal(t, "audio/wav", a.MimeType)

	a, err = l.Load(context.Background(), "", "data:audio/ogg;base64,"+encoded, "")
	require.NoError(t, err)
	assert.Equal(t, "audio/ogg", a.MimeType)

	_, err = l.Load(context.Background(), "", encoded, "video/mp4")
	require.ErrorIs(t, err, ErrUnsupportedMimeType)

	_, err = l.Load(context.Background(), "", "", "")
	require.ErrorIs(t, err, ErrNoAudio)

	_, err = l.Load(context.Background(), "", "!!!not base64", "wav")
	require.Error(t, err)
}

func TestLoader_Fetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.webm":
			w.Header().Set("Content-Type", "audio/webm")
			_, _ = w.Write([]byte("webm-bytes"))
		case "/big":
			w.Header().Set("Content-Type", "audio/webm")
			_, _ = w.Write(bytes.Repeat([]byte{0}, MaxAudioBytes+1))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	l := NewLoader(5*time.Second, URLPolicy{AllowedHosts: []string{"127.0.0.1"}})

	a, err := l.Load(context.Background(), srv.URL+"/ok.webm", "", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("webm-bytes"), a.Data)
	assert.Equal(t, "audio/webm", a.MimeType)

	_, err = l.Load(context.Background(), srv.URL+"/big", "", "")
	assert.True(t, errors.Is(err, ErrAudioTooLarge), "err = %v", err)

	_, err = l.Load(context.Background(), srv.URL+"/missing", "", "webm")
	require.Error(t, err)
}

func TestURLPolicy_Check(t *testing.T) {
	t.Parallel()

	open := URLPolicy{}
	allow := URLPolicy{AllowedHosts: []string{"voice.s3.us-east-1.amazonaws.com", "minio.internal"}}

	tests := []struct {
		name    string
		policy  URLPolicy
		url     string
		wantErr bool
	}{
		{name: "public host", policy: open, url: "https://cdn.example.com/a.webm"},
		{name: "loopback literal", policy: open, url: "http://127.0.0.1:8080/a.webm", wantErr: true},
		{name: "ipv6 loopback", policy: open, url: "http://[::1]/a.webm", wantErr: true},
		{name: "mapped loopback", policy: open, url: "http://[::ffff:127.0.0.1]/a.webm", wantErr: true},
		{name: "metadata address", policy: open, url: "http://169.254.169.254/latest/meta-data/", wantErr: true},
		{name: "private range", policy: open, url: "http://10.0.0.8/a.webm", wantErr: true},
		{name: "carrier nat range", policy: open, url: "http://100.64.1.1/a.webm", wantErr: true},
		{name: "localhost name", policy: open, url: "http://localhost/a.webm", wantErr: true},
		{name: "file scheme", policy: open, url: "file:///etc/passwd", wantErr: true},
		{name: "credentials", policy: open, url: "https://user:pw@cdn.example.com/a.webm", wantErr: true},
		{name: "allowlisted object store", policy: allow, url: "https://voice.s3.us-east-1.amazonaws.com/k?X-Amz-Signature=x"},
		{name: "allowlisted private store", policy: allow, url: "http://MINIO.internal:9000/voice/k"},
		{name: "host outside allowlist", policy: allow, url: "https://cdn.example.com/a.webm", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.policy.Check(tt.url)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrAudioURLNotAllowed)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoader_RefusesInternalTargets(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "audio/webm")
		_, _ = w.Write([]byte("secret"))
	}))
	t.Cleanup(internal.Close)

	l := NewLoader(5*time.Second, URLPolicy{})
	_, err := l.Load(context.Background(), internal.URL+"/a.webm", "", "")
	require.ErrorIs(t, err, ErrAudioURLNotAllowed)
	assert.Zero(t, hits.Load())
}

func TestLoader_RedirectOutsideAllowlist(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://169.254.169.254/latest/meta-data/", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	l := NewLoader(5*time.Second, URLPolicy{AllowedHosts: []string{"127.0.0.1"}})
	_, err := l.Load(context.Background(), srv.URL+"/a.webm", "", "webm")
	require.ErrorIs(t, err, ErrAudioURLNotAllowed)
}
