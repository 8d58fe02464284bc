package audio

import "bytes"

// Format is an audio container format detected from magic bytes.
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatM4A     Format = "m4a"
	FormatFLAC    Format = "flac"
	FormatOGG     Format = "ogg"
	FormatWebM    Format = "webm"
	FormatUnknown Format = "unknown"
)

var (
	riffMagic = []byte("RIFF")
	waveMagic = []byte("WAVE")
	flacMagic = []byte("fLaC")
	oggMagic  = []byte("OggS")
	id3Magic  = []byte("ID3")
	ftypMagic = []byte("ftyp")
	webmMagic = []byte{0x1A, 0x45, 0xDF, 0xA3} // EBML header
)

// Classify identifies the audio container format from the leading bytes.
// The client-declared content type is untrusted; only magic bytes decide.
// Classification is a pure function of the input bytes.
func Classify(b []byte) Format {
	if len(b) < 4 {
		return FormatUnknown
	}

	// RIFF....WAVE
	if bytes.HasPrefix(b, riffMagic) && len(b) >= 12 && bytes.Equal(b[8:12], waveMagic) {
		return FormatWAV
	}

	if bytes.HasPrefix(b, flacMagic) {
		return FormatFLAC
	}

	if bytes.HasPrefix(b, oggMagic) {
		return FormatOGG
	}

	if bytes.HasPrefix(b, webmMagic) {
		return FormatWebM
	}

	// MP4 family: size(4) + "ftyp" at offset 4
	if len(b) >= 12 && bytes.Equal(b[4:8], ftypMagic) {
		return FormatM4A
	}

	// MP3: ID3v2 tag, or a bare MPEG audio frame sync (11 set bits)
	if bytes.HasPrefix(b, id3Magic) {
		return FormatMP3
	}
	if b[0] == 0xFF && b[1]&0xE0 == 0xE0 {
		return FormatMP3
	}

	return FormatUnknown
}

// Ext returns the file extension for a format, used when persisting
// uploads to a scoped temporary file.
func (f Format) Ext() string {
	if f == FormatUnknown {
		return ".bin"
	}
	return "." + string(f)
}

// ContentType returns the canonical MIME type for a format.
func (f Format) ContentType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	case FormatM4A:
		return "audio/mp4"
	case FormatFLAC:
		return "audio/flac"
	case FormatOGG:
		return "audio/ogg"
	case FormatWebM:
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
