package capture

import (
	"errors"
	"fmt"
	"image"
	"unsafe"

	"github.com/ferago/launchpilot/internal/utils/winproc"
)

type bmpInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct{ Header bmpInfoHeader }

const (
	smCxScreen = 0
	smCyScreen = 1
)

// Screen captures still images of the whole desktop. Every call takes a fresh
// snapshot; nothing is cached between calls.
type Screen struct{}

func NewScreen() *Screen {
	return &Screen{}
}

// Capture grabs the current desktop contents as an RGBA image. Any GDI
// failure is returned as a plain error; callers are expected to treat it as
// "no information this cycle" and retry on their own schedule.
func (s *Screen) Capture() (image.Image, error) {
	width, _, _ := winproc.GetSystemMetrics.Call(smCxScreen)
	height, _, _ := winproc.GetSystemMetrics.Call(smCyScreen)
	w := int(int32(width))
	h := int(int32(height))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid screen dimensions %dx%d", w, h)
	}

	hdcScreen, _, _ := winproc.GetDC.Call(0)
	if hdcScreen == 0 {
		return nil, errors.New("GetDC failed")
	}
	defer winproc.ReleaseDC.Call(0, hdcScreen)

	hdcMem, _, _ := winproc.CreateCompatibleDC.Call(hdcScreen)
	if hdcMem == 0 {
		return nil, errors.New("CreateCompatibleDC failed")
	}
	defer winproc.DeleteDC.Call(hdcMem)

	// Top-down 32-bpp DIB so rows come out in image order.
	bi := bitmapInfo{Header: bmpInfoHeader{
		BiSize:     40,
		BiWidth:    int32(w),
		BiHeight:   -int32(h),
		BiPlanes:   1,
		BiBitCount: 32,
	}}
	var bitsPtr uintptr
	hbm, _, _ := winproc.CreateDIBSection.Call(hdcScreen, uintptr(unsafe.Pointer(&bi)), 0, uintptr(unsafe.Pointer(&bitsPtr)), 0, 0)
	if hbm == 0 || bitsPtr == 0 {
		return nil, errors.New("CreateDIBSection failed")
	}
	defer winproc.DeleteObject.Call(hbm)
	winproc.SelectObject.Call(hdcMem, hbm)

	ret, _, _ := winproc.BitBlt.Call(hdcMem, 0, 0, uintptr(w), uintptr(h), hdcScreen, 0, 0, winproc.SRCCOPY)
	if ret == 0 {
		return nil, errors.New("BitBlt failed")
	}
	winproc.GdiFlush.Call()

	// The DIB holds BGRA; swap B<->R while copying into an RGBA image.
	n := w * h * 4
	src := unsafe.Slice((*byte)(unsafe.Pointer(bitsPtr)), n)

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, src)
	for i := 0; i < n; i += 4 {
		img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		img.Pix[i+3] = 0xff
	}
	return img, nil
}
