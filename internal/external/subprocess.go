// Package external adapts the out-of-scope collaborators the core calls:
// the MSD calculator, the BPM detector, the FFmpeg rate transformer, the
// osu! collection.db writer, and the .osr replay reader.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/kaanreal/companella/internal/model"
)

// runWithTimeout invokes name with args, killing the subprocess if it
// outlives timeout, and returns stdout. On failure the
// error carries the stderr tail.
func runWithTimeout(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%s timed out after %s", name, timeout)
	}
	if err != nil {
		tail := stderrTail(stderr.Bytes())
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, tail)
	}

	return stdout.Bytes(), nil
}

func stderrTail(b []byte) string {
	const maxTail = 512
	if len(b) > maxTail {
		b = b[len(b)-maxTail:]
	}
	return string(b)
}

// MsdTool invokes the external MSD calculator. 30s timeout per
// invocation, 60s for batch.
type MsdTool struct {
	BinaryPath string
}

const (
	msdTimeout      = 30 * time.Second
	msdBatchTimeout = 60 * time.Second
)

type msdResponse struct {
	Overall    float64            `json:"overall"`
	Stream     float64            `json:"stream"`
	Jumpstream float64            `json:"jumpstream"`
	Handstream float64            `json:"handstream"`
	Stamina    float64            `json:"stamina"`
	Jackspeed  float64            `json:"jackspeed"`
	Chordjack  float64            `json:"chordjack"`
	Technical  float64            `json:"technical"`
	PerRate    map[string]float64 `json:"per_rate,omitempty"`
}

// Score runs the MSD tool for one beatmap at one rate and returns the
// dominant skillset and its value. Implements tracker.Scorer.
func (t MsdTool) Score(ctx context.Context, beatmapPath string, rate model.Rate) (model.Skillset, float64, error) {
	out, err := runWithTimeout(ctx, msdTimeout, t.BinaryPath, beatmapPath, "--rate", strconv.FormatFloat(float64(rate), 'f', -1, 64))
	if err != nil {
		return "", 0, err
	}

	var resp msdResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return "", 0, fmt.Errorf("parse msd tool output: %w", err)
	}

	scores := model.SkillsetScores{
		Stream:     resp.Stream,
		Jumpstream: resp.Jumpstream,
		Handstream: resp.Handstream,
		Stamina:    resp.Stamina,
		Jackspeed:  resp.Jackspeed,
		Chordjack:  resp.Chordjack,
		Technical:  resp.Technical,
	}.WithOverall()

	dominant := scores.Dominant()
	return dominant, scores.ValueFor(dominant), nil
}

// ScoreAllRates runs the MSD tool once per supported rate for a beatmap,
// for the batch-indexing path.
func (t MsdTool) ScoreAllRates(ctx context.Context, beatmapPath string) (map[model.Rate]model.SkillsetScores, error) {
	ctx, cancel := context.WithTimeout(ctx, msdBatchTimeout)
	defer cancel()

	out := make(map[model.Rate]model.SkillsetScores, len(SupportedRates))
	for _, rate := range SupportedRates {
		data, err := runWithTimeout(ctx, msdTimeout, t.BinaryPath, beatmapPath, "--rate", strconv.FormatFloat(float64(rate), 'f', -1, 64))
		if err != nil {
			continue
		}
		var resp msdResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		out[rate] = model.SkillsetScores{
			Stream:     resp.Stream,
			Jumpstream: resp.Jumpstream,
			Handstream: resp.Handstream,
			Stamina:    resp.Stamina,
			Jackspeed:  resp.Jackspeed,
			Chordjack:  resp.Chordjack,
			Technical:  resp.Technical,
		}.WithOverall()
	}
	return out, nil
}

// SupportedRates lists the rate steps the maps store indexes.
var SupportedRates = func() []model.Rate {
	rates := make([]model.Rate, 0, 14)
	for tenths := 7; tenths <= 20; tenths++ {
		rates = append(rates, model.Rate(float64(tenths)/10))
	}
	return rates
}()

// BpmTool invokes the external BPM detector. 300s timeout.
type BpmTool struct {
	BinaryPath string
}

type BpmBeat struct {
	TimeMs int64   `json:"time_ms"`
	BPM    float64 `json:"bpm"`
}

type BpmResult struct {
	Beats   []BpmBeat `json:"beats"`
	Average float64   `json:"average,omitempty"`
}

const bpmTimeout = 300 * time.Second

// Detect runs the BPM tool against an audio file.
func (t BpmTool) Detect(ctx context.Context, audioPath string) (BpmResult, error) {
	out, err := runWithTimeout(ctx, bpmTimeout, t.BinaryPath, audioPath)
	if err != nil {
		return BpmResult{}, err
	}

	var result BpmResult
	if err := json.Unmarshal(out, &result); err != nil {
		return BpmResult{}, fmt.Errorf("parse bpm tool output: %w", err)
	}
	return result, nil
}

// FfmpegRateTransformer changes an audio file's playback rate (and
// optionally its pitch) via ffmpeg, for rate-changed beatmap copies.
type FfmpegRateTransformer struct {
	BinaryPath string
}

const ffmpegTimeout = 30 * time.Second

// Transform writes a rate-changed copy of inputPath to outputPath.
// pitchAdjust selects atempo (pitch preserved) vs asetrate (pitch shifts
// with rate), mirroring the settings file's rate_changer_pitch_adjust flag.
func (t FfmpegRateTransformer) Transform(ctx context.Context, inputPath, outputPath string, rate float64, pitchAdjust bool) error {
	filter := fmt.Sprintf("atempo=%s", strconv.FormatFloat(rate, 'f', -1, 64))
	if !pitchAdjust {
		filter = fmt.Sprintf("asetrate=44100*%s,aresample=44100", strconv.FormatFloat(rate, 'f', -1, 64))
	}

	_, err := runWithTimeout(ctx, ffmpegTimeout, t.BinaryPath,
		"-y", "-i", inputPath, "-filter:a", filter, outputPath)
	return err
}
