// Package window answers "is this application's top-level window on screen"
// without touching the application itself.
package window

import (
	"errors"
	"log/slog"
	"strings"
	"syscall"
	"unsafe"

	"github.com/lxn/win"

	"github.com/ferago/launchpilot/internal/utils/winproc"
)

type Manager struct {
	logger *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{logger: logger}
}

// findContext carries one lookup's state through the EnumWindows lParam.
// EnumWindows is synchronous, so stack lifetime is sufficient.
type findContext struct {
	needle string
	found  uintptr
}

// enumProc is created exactly once: the runtime never releases syscall
// callbacks, and a window wait enumerates thousands of times per flow.
var enumProc = syscall.NewCallback(func(hwnd uintptr, lparam uintptr) uintptr {
	ctx := (*findContext)(unsafe.Pointer(lparam))
	visible, _, _ := winproc.IsWindowVisible.Call(hwnd)
	if visible == 0 {
		return 1
	}
	// A minimized window is not on screen: it can neither be matched against
	// a capture nor usefully repositioned.
	iconic, _, _ := winproc.IsIconic.Call(hwnd)
	if iconic != 0 {
		return 1
	}
	length, _, _ := winproc.GetWindowTextLength.Call(hwnd)
	if length == 0 {
		return 1
	}
	buf := make([]uint16, length+1)
	winproc.GetWindowText.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), length+1)
	if strings.Contains(strings.ToLower(syscall.UTF16ToString(buf)), ctx.needle) {
		ctx.found = hwnd
		return 0 // stop enumeration
	}
	return 1
})

// FindByTitle returns the handle of the first visible, non-minimized
// top-level window whose title contains the given substring
// (case-insensitive).
func (m *Manager) FindByTitle(title string) (uintptr, bool) {
	ctx := findContext{needle: strings.ToLower(title)}
	winproc.EnumWindows.Call(enumProc, uintptr(unsafe.Pointer(&ctx)))
	if ctx.found == 0 {
		return 0, false
	}
	m.logger.Debug("window found", slog.String("title", title), slog.Uint64("hwnd", uint64(ctx.found)))
	return ctx.found, true
}

// Reposition moves and resizes the window to the requested geometry.
func (m *Manager) Reposition(hwnd uintptr, x, y, width, height int) error {
	if !win.SetWindowPos(win.HWND(hwnd), 0, int32(x), int32(y), int32(width), int32(height), win.SWP_NOZORDER|win.SWP_SHOWWINDOW) {
		return errors.New("SetWindowPos failed")
	}
	m.logger.Info("window repositioned",
		slog.Int("x", x), slog.Int("y", y),
		slog.Int("width", width), slog.Int("height", height),
	)
	return nil
}
