package audio_test

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/MrWong99/jargonaut/pkg/audio"
)

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want audio.Format
	}{
		{"riff header", audio.EncodeWAV(nil, 16000, 1), audio.FormatWAV},
		{"id3 tag", []byte("ID3\x04\x00"), audio.FormatMP3},
		{"empty", nil, audio.FormatMP3},
		{"short riff prefix", []byte("RIF"), audio.FormatMP3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.DetectFormat(tc.data); got != tc.want {
				t.Errorf("DetectFormat = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormat_ContentType(t *testing.T) {
	t.Parallel()

	if got := audio.FormatWAV.ContentType(); got != "audio/wav" {
		t.Errorf("wav content type = %q", got)
	}
	if got := audio.FormatMP3.ContentType(); got != "audio/mpeg" {
		t.Errorf("mp3 content type = %q", got)
	}
}

func TestFormatFromFilename(t *testing.T) {
	t.Parallel()

	tests := map[string]audio.Format{
		"meeting.mp3":   audio.FormatMP3,
		"MEETING.FLAC":  audio.FormatFLAC,
		"memo.m4a":      audio.FormatM4A,
		"clip.webm":     audio.FormatWebM,
		"voice.ogg":     audio.FormatOGG,
		"recording":     audio.FormatWAV,
		"recording.wav": audio.FormatWAV,
	}
	for name, want := range tests {
		if got := audio.FormatFromFilename(name); got != want {
			t.Errorf("FormatFromFilename(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestEncodeParseWAV_RoundTrip(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 32000) // one second of 16 kHz mono
	for i := range pcm {
		pcm[i] = byte(i)
	}
	wav := audio.EncodeWAV(pcm, 16000, 1)

	info, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Errorf("info = %+v", info)
	}
	if info.DataOffset != 44 || info.DataSize != len(pcm) {
		t.Errorf("data offset/size = %d/%d", info.DataOffset, info.DataSize)
	}
	if got := info.Duration(); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
	if !bytes.Equal(wav[info.DataOffset:], pcm) {
		t.Error("payload mismatch")
	}
}

func TestParseWAV_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	wav := audio.EncodeWAV([]byte{1, 2, 3, 4}, 22050, 1)
	// Splice a LIST chunk with an odd size between fmt and data.
	list := []byte("LIST")
	list = binary.LittleEndian.AppendUint32(list, 3)
	list = append(list, 'a', 'b', 'c', 0)
	spliced := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)

	info, err := audio.ParseWAV(spliced)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.SampleRate != 22050 {
		t.Errorf("SampleRate = %d", info.SampleRate)
	}
	if !bytes.Equal(spliced[info.DataOffset:], []byte{1, 2, 3, 4}) {
		t.Errorf("payload = %v", spliced[info.DataOffset:])
	}
}

func TestParseWAV_Invalid(t *testing.T) {
	t.Parallel()

	for name, data := range map[string][]byte{
		"short":   []byte("RIFF"),
		"no riff": []byte("XXXX\x00\x00\x00\x00WAVE"),
		"no wave": []byte("RIFF\x00\x00\x00\x00AVI "),
		"no data": []byte("RIFF\x04\x00\x00\x00WAVE"),
	} {
		if _, err := audio.ParseWAV(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSilence(t *testing.T) {
	t.Parallel()

	wav := audio.Silence(500*time.Millisecond, 16000)
	info, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.DataSize != 16000 {
		t.Errorf("DataSize = %d, want 16000", info.DataSize)
	}
	for _, b := range wav[info.DataOffset:] {
		if b != 0 {
			t.Fatal("silence contains non-zero sample")
		}
	}
}
