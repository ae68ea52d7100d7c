package input

import (
	"image"
	"log/slog"
	"math"
	"unicode/utf16"
	"unsafe"

	"github.com/lxn/win"

	"github.com/ferago/launchpilot/internal/utils"
)

// HID drives the real pointer and keyboard through SendInput. All timing is
// drawn from uniform ranges per call; nothing is remembered between calls and
// the cursor position is re-queried from the OS before every movement.
type HID struct {
	logger *slog.Logger
	curve  curveConfig
}

func NewHID(logger *slog.Logger) *HID {
	return &HID{logger: logger, curve: defaultCurveConfig}
}

// CursorPos returns the current pointer position, falling back to the screen
// center when the OS query fails.
func (hid *HID) CursorPos() (int, int) {
	var pt win.POINT
	if !win.GetCursorPos(&pt) {
		return int(win.GetSystemMetrics(win.SM_CXSCREEN)) / 2,
			int(win.GetSystemMetrics(win.SM_CYSCREEN)) / 2
	}
	return int(pt.X), int(pt.Y)
}

// MovePointer moves the mouse to (x, y) in absolute screen coordinates along
// a humanized Bézier arc, pausing 5-15 ms between samples, then snaps exactly
// onto the target.
func (hid *HID) MovePointer(x, y int) {
	startX, startY := hid.CursorPos()
	path := bezierPathGenerate(float64(startX), float64(startY), float64(x), float64(y), hid.curve)

	for i := 0; i+1 < len(path); i++ {
		hid.sendMouseMove(int(math.Round(path[i].x)), int(math.Round(path[i].y)))
		utils.SleepRange(5, 15)
	}
	hid.sendMouseMove(x, y)
}

// Click moves to (x, y), dwells 50-150 ms, presses the primary button and
// pauses 100-300 ms before returning.
func (hid *HID) Click(x, y int) {
	hid.MovePointer(x, y)
	utils.SleepRange(50, 150)
	hid.sendButton(win.MOUSEEVENTF_LEFTDOWN)
	utils.SleepRange(15, 40)
	hid.sendButton(win.MOUSEEVENTF_LEFTUP)
	utils.SleepRange(100, 300)
}

// ClickWithin clicks a uniformly random point inside the rectangle, keeping a
// 5 px margin from every edge. Used where the exact pixel is irrelevant, e.g.
// a checkbox region.
func (hid *HID) ClickWithin(r image.Rectangle) {
	p := randomPointWithin(r, 5)
	hid.logger.Debug("randomized click", slog.Int("x", p.X), slog.Int("y", p.Y))
	hid.Click(p.X, p.Y)
}

// TypeText emits each character as a discrete unicode keystroke with a
// uniform 50-150 ms gap.
func (hid *HID) TypeText(text string) {
	for _, r := range text {
		for _, unit := range utf16.Encode([]rune{r}) {
			hid.sendKey(0, unit, win.KEYEVENTF_UNICODE)
			hid.sendKey(0, unit, win.KEYEVENTF_UNICODE|win.KEYEVENTF_KEYUP)
		}
		utils.SleepRange(50, 150)
	}
}

// PressKey presses a single named key and pauses 100-200 ms.
func (hid *HID) PressKey(key string) {
	vk, ok := namedKeys[key]
	if !ok {
		hid.logger.Warn("unknown key name", slog.String("key", key))
		return
	}
	hid.sendKey(vk, 0, 0)
	utils.SleepRange(15, 40)
	hid.sendKey(vk, 0, win.KEYEVENTF_KEYUP)
	utils.SleepRange(100, 200)
}

var namedKeys = map[string]uint16{
	"enter":  win.VK_RETURN,
	"tab":    win.VK_TAB,
	"escape": win.VK_ESCAPE,
	"space":  win.VK_SPACE,
}

// randomPointWithin samples a uniform point inside r, at least margin px from
// each edge. Degenerate rectangles collapse to a point just inside the
// top-left margin, matching the clamp the click sites rely on.
func randomPointWithin(r image.Rectangle, margin int) image.Point {
	maxX := r.Dx() - margin
	if maxX < margin+1 {
		maxX = margin + 1
	}
	maxY := r.Dy() - margin
	if maxY < margin+1 {
		maxY = margin + 1
	}
	return image.Point{
		X: r.Min.X + utils.RandRange(margin, maxX),
		Y: r.Min.Y + utils.RandRange(margin, maxY),
	}
}

func (hid *HID) sendMouseMove(x, y int) {
	w := int(win.GetSystemMetrics(win.SM_CXSCREEN))
	h := int(win.GetSystemMetrics(win.SM_CYSCREEN))
	if w <= 1 || h <= 1 {
		return
	}
	in := win.MOUSE_INPUT{
		Type: win.INPUT_MOUSE,
		Mi: win.MOUSEINPUT{
			Dx:      int32(x * 65535 / (w - 1)),
			Dy:      int32(y * 65535 / (h - 1)),
			DwFlags: win.MOUSEEVENTF_MOVE | win.MOUSEEVENTF_ABSOLUTE,
		},
	}
	if win.SendInput(1, unsafe.Pointer(&in), int32(unsafe.Sizeof(in))) != 1 {
		hid.logger.Debug("mouse move injection failed", slog.Int("x", x), slog.Int("y", y))
	}
}

func (hid *HID) sendButton(flags uint32) {
	in := win.MOUSE_INPUT{
		Type: win.INPUT_MOUSE,
		Mi:   win.MOUSEINPUT{DwFlags: flags},
	}
	if win.SendInput(1, unsafe.Pointer(&in), int32(unsafe.Sizeof(in))) != 1 {
		hid.logger.Debug("mouse button injection failed")
	}
}

func (hid *HID) sendKey(vk, scan uint16, flags uint32) {
	in := win.KEYBD_INPUT{
		Type: win.INPUT_KEYBOARD,
		Ki: win.KEYBDINPUT{
			WVk:     vk,
			WScan:   scan,
			DwFlags: flags,
		},
	}
	if win.SendInput(1, unsafe.Pointer(&in), int32(unsafe.Sizeof(in))) != 1 {
		hid.logger.Debug("key injection failed", slog.Int("vk", int(vk)))
	}
}
