package transcribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// ffmpegAvailable caches whether ffmpeg is in PATH (checked once at startup).
var ffmpegAvailable *bool

// CheckFFmpeg checks if ffmpeg is available in PATH. Call once at startup.
func CheckFFmpeg() bool {
	if ffmpegAvailable != nil {
		return *ffmpegAvailable
	}
	_, err := exec.LookPath("ffmpeg")
	avail := err == nil
	ffmpegAvailable = &avail
	return avail
}

// Preprocess converts arbitrary uploaded audio to the 16kHz mono PCM WAV that
// whisper.cpp expects, using ffmpeg.
//
// Returns the path to a temporary WAV file and a cleanup function. If ffmpeg
// is unavailable and the input is already a WAV, the original path is returned
// with a no-op cleanup; other formats cannot be decoded without it.
func Preprocess(ctx context.Context, inputPath string) (string, func(), error) {
	noop := func() {}

	if !CheckFFmpeg() {
		if filepath.Ext(inputPath) == ".wav" {
			return inputPath, noop, nil
		}
		return inputPath, noop, fmt.Errorf("ffmpeg not in PATH, cannot decode %s", filepath.Base(inputPath))
	}

	// Concurrent requests each get their own output path; a shared name
	// would let one request's cleanup delete another's staged audio.
	outPath := filepath.Join(os.TempDir(), "scribed-preprocess-"+uuid.NewString()+".wav")

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", inputPath,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		outPath,
	)
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		if ctx.Err() != nil {
			return inputPath, noop, ctx.Err()
		}
		return inputPath, noop, fmt.Errorf("ffmpeg preprocess: %w", err)
	}

	cleanup := func() {
		os.Remove(outPath)
	}
	return outPath, cleanup, nil
}
