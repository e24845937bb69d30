//go:build !windows

package process

// noopHandle is the non-Windows build's Handle: the game only exposes the
// memory layout this core reads on Windows, so every read fails closed
// here. gopsutil-based process discovery (Attach) still works cross-
// platform; only the raw memory reads are Windows-only.
type noopHandle struct{}

func newHandle(pid int32) (Handle, error) {
	return noopHandle{}, nil
}

func (noopHandle) ReadGeneral() (GeneralData, bool) { return GeneralData{}, false }
func (noopHandle) ReadPlayer() (PlayerData, bool)   { return PlayerData{}, false }
func (noopHandle) ReadResults() (ResultsData, bool) { return ResultsData{}, false }
func (noopHandle) ReadBeatmap() (BeatmapInfo, bool) { return BeatmapInfo{}, false }
func (noopHandle) Close()                           {}
