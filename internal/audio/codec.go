/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audio turns host PCM into a codec stream an MSX television will
// actually play: re-encode through ffmpeg, synthesize a Content-Length from
// the track duration, prebuffer, then pump.
package audio

import (
	"fmt"

	"github.com/friendsincode/msx_bridge/internal/config"
)

// Codec describes one deliverable output format. ByteRate is the nominal
// encoded bytes per second used to synthesize Content-Length; it must match
// the encoder's bitrate settings or seeking on the TV drifts.
type Codec struct {
	Format   config.OutputFormat
	MIMEType string
	ByteRate int
	FFArgs   []string
}

var codecs = map[config.OutputFormat]Codec{
	config.FormatMP3: {
		Format:   config.FormatMP3,
		MIMEType: "audio/mpeg",
		ByteRate: 40000, // 320 kbit/s
		FFArgs:   []string{"-c:a", "libmp3lame", "-b:a", "320k", "-f", "mp3"},
	},
	config.FormatAAC: {
		Format:   config.FormatAAC,
		MIMEType: "audio/aac",
		ByteRate: 32000, // 256 kbit/s
		FFArgs:   []string{"-c:a", "aac", "-b:a", "256k", "-f", "adts"},
	},
	config.FormatFLAC: {
		Format:   config.FormatFLAC,
		MIMEType: "audio/flac",
		ByteRate: 120000,
		FFArgs:   []string{"-c:a", "flac", "-f", "flac"},
	},
}

// CodecFor returns the codec for format.
func CodecFor(format config.OutputFormat) (Codec, error) {
	c, ok := codecs[format]
	if !ok {
		return Codec{}, fmt.Errorf("unsupported output format %q", format)
	}
	return c, nil
}

// EstimateContentLength returns the synthetic byte length for a track of
// the given duration in seconds. Zero or negative durations yield zero,
// which callers translate to chunked delivery.
func (c Codec) EstimateContentLength(durationSeconds int) int64 {
	if durationSeconds <= 0 {
		return 0
	}
	return int64(durationSeconds) * int64(c.ByteRate)
}
