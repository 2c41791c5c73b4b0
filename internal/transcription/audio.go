package transcription

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"
)

// MaxAudioBytes caps uploads and fetched audio.
const MaxAudioBytes = 20 << 20

var (
	// ErrUnsupportedMimeType is returned for anything but the accepted audio formats.
	ErrUnsupportedMimeType = errors.New("unsupported audio mime type")
	// ErrAudioTooLarge is returned when audio exceeds MaxAudioBytes.
	ErrAudioTooLarge = errors.New("audio exceeds size limit")
	// ErrNoAudio is returned when neither a URL nor inline data was supplied.
	ErrNoAudio = errors.New("no audio supplied")
)

// formats maps accepted subtypes to a file extension.
var formats = map[string]string{
	"webm": ".webm",
	"mpeg": ".mp3",
	"mp3":  ".mp3",
	"mp4":  ".mp4",
	"wav":  ".wav",
	"ogg":  ".ogg",
	"flac": ".flac",
}

// NormalizeMimeType accepts "webm", "audio/webm", "audio/webm;codecs=opus"
// and similar, returning "audio/<subtype>". Video types are rejected.
func NormalizeMimeType(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", ErrUnsupportedMimeType
	}
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		s = mt
	}
	major, sub, found := strings.Cut(s, "/")
	if !found {
		sub, major = major, "audio"
	}
	if major != "audio" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMimeType, s)
	}
	sub = strings.TrimPrefix(sub, "x-")
	if _, ok := formats[sub]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMimeType, s)
	}
	return "audio/" + sub, nil
}

// Extension returns the file extension for a normalized mime type.
func Extension(mimeType string) string {
	if ext, ok := formats[strings.TrimPrefix(mimeType, "audio/")]; ok {
		return ext
	}
	return ".bin"
}

// Audio is a fully loaded audio payload.
type Audio struct {
	Data     []byte
	MimeType string
}

// Filename is the name presented to the transcription backend, which uses
// the extension to pick a decoder.
func (a Audio) Filename() string {
	return "voice-note" + Extension(a.MimeType)
}

// maxAudioRedirects bounds redirects followed while fetching audio.
const maxAudioRedirects = 3

// Loader resolves a URL or inline base64 payload into Audio.
type Loader struct {
	client *http.Client
	policy URLPolicy
}

// NewLoader returns a loader whose fetches time out after timeout and only
// reach URLs accepted by policy, including redirect targets.
func NewLoader(timeout time.Duration, policy URLPolicy) *Loader {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if policy.restrictsAddresses() {
		dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second, Control: dialControl}
		transport.DialContext = dialer.DialContext
		transport.Proxy = nil
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxAudioRedirects {
				return fmt.Errorf("stopped after %d redirects", maxAudioRedirects)
			}
			return policy.Check(req.URL.String())
		},
	}
	return &Loader{client: client, policy: policy}
}

// Load returns the audio from audioURL, or from audioBase64 when no URL is
// given. audioBase64 may be a data URL. mimeType may be empty when the
// source declares one.
func (l *Loader) Load(ctx context.Context, audioURL, audioBase64, mimeType string) (Audio, error) {
	switch {
	case audioURL != "":
		return l.fetch(ctx, audioURL, mimeType)
	case audioBase64 != "":
		return decodeInline(audioBase64, mimeType)
	default:
		return Audio{}, ErrNoAudio
	}
}

func (l *Loader) fetch(ctx context.Context, audioURL, mimeType string) (Audio, error) {
	if err := l.policy.Check(audioURL); err != nil {
		return Audio{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return Audio{}, fmt.Errorf("failed to build audio request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("failed to fetch audio: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Audio{}, fmt.Errorf("failed to fetch audio: status %d", resp.StatusCode)
	}
	if resp.ContentLength > MaxAudioBytes {
		return Audio{}, ErrAudioTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAudioBytes+1))
	if err != nil {
		return Audio{}, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(data) > MaxAudioBytes {
		return Audio{}, ErrAudioTooLarge
	}

	if mimeType == "" {
		mimeType = resp.Header.Get("Content-Type")
	}
	mt, err := NormalizeMimeType(mimeType)
	if err != nil {
		return Audio{}, err
	}
	return Audio{Data: data, MimeType: mt}, nil
}

func decodeInline(payload, mimeType string) (Audio, error) {
	// data:audio/webm;base64,AAAA
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found {
			return Audio{}, errors.New("malformed data URL")
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(header, ";base64")
		}
		payload = body
	}

	if base64.StdEncoding.DecodedLen(len(payload)) > MaxAudioBytes+3 {
		return Audio{}, ErrAudioTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return Audio{}, fmt.Errorf("failed to decode audio: %w", err)
	}
	if len(data) > MaxAudioBytes {
		return Audio{}, ErrAudioTooLarge
	}

	mt, err := NormalizeMimeType(mimeType)
	if err != nil {
		return Audio{}, err
	}
	return Audio{Data: data, MimeType: mt}, nil
}

// Reader exposes the audio bytes as a stream.
func (a Audio) Reader() io.Reader {
	return bytes.NewReader(a.Data)
}
