// Package audio holds the container-level helpers shared by the speech
// providers: format sniffing, MIME types, and a minimal RIFF/WAV codec.
//
// Audio travels through Jargonaut as complete encoded files (WAV or MP3), never
// as raw frames, so nothing here decodes compressed payloads.
package audio

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format names an encoded audio container.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
	FormatOGG  Format = "ogg"
	FormatWebM Format = "webm"
	FormatM4A  Format = "m4a"
)

// DetectFormat sniffs data. A RIFF header means WAV; anything else is
// treated as MP3.
func DetectFormat(data []byte) Format {
	if bytes.HasPrefix(data, []byte("RIFF")) {
		return FormatWAV
	}
	return FormatMP3
}

// ContentType returns the MIME type used when serving f over HTTP.
func (f Format) ContentType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatFLAC:
		return "audio/flac"
	case FormatOGG:
		return "audio/ogg"
	case FormatWebM:
		return "audio/webm"
	case FormatM4A:
		return "audio/mp4"
	default:
		return "audio/mpeg"
	}
}

// Extension returns the file extension for f without the leading dot.
func (f Format) Extension() string {
	if f == "" {
		return string(FormatMP3)
	}
	return string(f)
}

// FormatFromFilename infers the media format from a file extension. Unknown
// or missing extensions fall back to WAV.
func FormatFromFilename(name string) Format {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "mp3":
		return FormatMP3
	case "flac":
		return FormatFLAC
	case "ogg", "oga", "opus":
		return FormatOGG
	case "webm":
		return FormatWebM
	case "m4a", "mp4":
		return FormatM4A
	default:
		return FormatWAV
	}
}
