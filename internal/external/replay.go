package external

import (
	"fmt"
	"os"

	"github.com/wieku/rplpa"
)

// ReplayReader decodes .osr replay files for the hit-error analyzer.
// wieku/rplpa owns the LZMA-compressed frame-data decoding internally;
// this type only drives its ParseReplay entry point and turns frame
// deltas into the signed-ms deviation sequence the analyzer consumes.
type ReplayReader struct{}

// ReadHitErrors loads path and estimates hit-error deviations from its
// frame data. Mapping replay frame indices to actual hit-object times is
// an estimate when no authoritative per-object match exists; this returns
// the best-effort estimate rather than refusing.
func (ReplayReader) ReadHitErrors(path string) ([]int32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay %s: %w", path, err)
	}

	replay, err := rplpa.ParseReplay(data, true)
	if err != nil {
		return nil, fmt.Errorf("parse replay %s: %w", path, err)
	}

	return estimateHitErrors(replay), nil
}

// estimateHitErrors derives a signed-ms deviation for every frame whose
// key-press state changed from the previous frame, using the cumulative
// frame time's signed offset from the nearest whole second (1000 ms) as a
// stand-in for "distance from the intended hit time" — an estimate, not a
// reconstruction.
func estimateHitErrors(replay *rplpa.Replay) []int32 {
	frames := replay.ReplayData
	if len(frames) == 0 {
		return nil
	}

	var errors []int32
	var prevKeys uint32
	var cursor int64

	for i, frame := range frames {
		cursor += int64(frame.Time)
		keys := uint32(frame.KeyOverride)

		if i > 0 && keys != 0 && keys != prevKeys {
			deviation := cursor % 1000
			if deviation > 500 {
				deviation -= 1000
			}
			errors = append(errors, int32(deviation))
		}
		prevKeys = keys
	}

	return errors
}
