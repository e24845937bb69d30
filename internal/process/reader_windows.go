//go:build windows

package process

import (
	"fmt"
	"unsafe"

	"github.com/StackExchange/wmi"
	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

var (
	kernel32              = windows.NewLazySystemDLL("kernel32.dll")
	procReadProcessMemory = kernel32.NewProc("ReadProcessMemory")
)

// winHandle reads the game's memory directly via ReadProcessMemory. The
// actual struct offsets live in a signature map refreshed per game build;
// locating that map requires a pattern scan against the game's loaded
// module, which is an external collaborator's concern.
// Nothing in this file populates signatures, and the Read methods decode no
// struct: every read returns ok=false.
type winHandle struct {
	pid        int32
	procHandle windows.Handle
	signatures *memorySignatures
}

// memorySignatures holds the base addresses a pattern scan resolved for
// this process's loaded build.
type memorySignatures struct {
	statusAddr    uintptr
	audioTimeAddr uintptr
	modsAddr      uintptr
	accuracyAddr  uintptr
	beatmapAddr   uintptr
}

func newHandle(pid int32) (Handle, error) {
	procHandle, err := windows.OpenProcess(windows.PROCESS_VM_READ|windows.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("open process %d: %w", pid, err)
	}

	return &winHandle{pid: pid, procHandle: procHandle}, nil
}

// ensureSignatures looks the process up over WMI when signatures is nil.
// No pattern scan runs on the result, so signatures stays nil and this
// reports false whenever it was nil on entry.
func (h *winHandle) ensureSignatures() bool {
	if h.signatures != nil {
		return true
	}

	if err := ole.CoInitialize(0); err == nil {
		defer ole.CoUninitialize()
	}

	var rows []struct {
		ProcessId      uint32
		ExecutablePath string
	}
	query := fmt.Sprintf("SELECT ProcessId, ExecutablePath FROM Win32_Process WHERE ProcessId = %d", h.pid)
	if err := wmi.Query(query, &rows); err != nil || len(rows) == 0 {
		return false
	}

	// The pattern scan against the resolved module that would populate
	// memorySignatures plugs in here; it is external to this core.
	return false
}

func (h *winHandle) readMemory(addr uintptr, size int) ([]byte, bool) {
	if addr == 0 {
		return nil, false
	}

	buf := make([]byte, size)
	var bytesRead uintptr
	ret, _, _ := procReadProcessMemory.Call(
		uintptr(h.procHandle),
		addr,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(size),
		uintptr(unsafe.Pointer(&bytesRead)),
	)
	if ret == 0 || bytesRead != uintptr(size) {
		return nil, false
	}
	return buf, true
}

func (h *winHandle) ReadGeneral() (GeneralData, bool) {
	if !h.ensureSignatures() {
		return GeneralData{}, false
	}
	return GeneralData{}, false
}

func (h *winHandle) ReadPlayer() (PlayerData, bool) {
	if !h.ensureSignatures() {
		return PlayerData{}, false
	}
	return PlayerData{}, false
}

func (h *winHandle) ReadResults() (ResultsData, bool) {
	if !h.ensureSignatures() {
		return ResultsData{}, false
	}
	return ResultsData{}, false
}

func (h *winHandle) ReadBeatmap() (BeatmapInfo, bool) {
	if !h.ensureSignatures() {
		return BeatmapInfo{}, false
	}
	return BeatmapInfo{}, false
}

func (h *winHandle) Close() {
	windows.CloseHandle(h.procHandle)
}
