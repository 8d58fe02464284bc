package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/scribehost/scribed/internal/model"
)

// WhisperCPP runs a local whisper.cpp CLI binary against a model file and
// parses its JSON output. This is the in-process engine of the desktop app
// reduced to its command-line form.
type WhisperCPP struct {
	bin     string
	threads int
}

// NewWhisperCPP creates a provider around a whisper.cpp binary.
func NewWhisperCPP(bin string, threads int) *WhisperCPP {
	if threads < 1 {
		threads = 4
	}
	return &WhisperCPP{bin: bin, threads: threads}
}

func (w *WhisperCPP) Name() string { return "whispercpp" }

// cliOutput mirrors the whisper.cpp --output-json document.
type cliOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"` // milliseconds
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text            string `json:"text"`
		SpeakerTurnNext bool   `json:"speaker_turn_next"`
	} `json:"transcription"`
}

// Transcribe invokes the CLI with JSON output next to the input file.
// Speaker-turn detection is enabled for tdrz-capable models.
func (w *WhisperCPP) Transcribe(ctx context.Context, audioPath string, m model.Info) (*Result, error) {
	args := []string{
		"-m", m.Path,
		"-f", audioPath,
		"-t", fmt.Sprintf("%d", w.threads),
		"--output-json",
	}
	if m.SupportsSpeakerTurns() {
		args = append(args, "--tinydiarize")
	}

	cmd := exec.CommandContext(ctx, w.bin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("whisper.cpp: %w: %s", err, firstLine(out))
	}

	jsonPath := audioPath + ".json"
	defer os.Remove(jsonPath)

	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp output: %w", err)
	}
	return parseCLIOutput(raw)
}

// parseCLIOutput converts the CLI JSON document into a Result.
func parseCLIOutput(raw []byte) (*Result, error) {
	var doc cliOutput
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode whisper.cpp json: %w", err)
	}

	res := &Result{Language: doc.Result.Language}
	var parts []string
	for _, seg := range doc.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		res.Segments = append(res.Segments, Segment{
			Start:           float64(seg.Offsets.From) / 1000.0,
			End:             float64(seg.Offsets.To) / 1000.0,
			Text:            text,
			SpeakerTurnNext: seg.SpeakerTurnNext,
		})
		parts = append(parts, text)
	}
	res.Text = strings.Join(parts, " ")
	if n := len(res.Segments); n > 0 {
		res.Duration = res.Segments[n-1].End
	}
	return res, nil
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return s
}
