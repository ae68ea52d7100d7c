package winproc

import "golang.org/x/sys/windows"

var (
	USER32              = windows.NewLazySystemDLL("user32.dll")
	GetDC               = USER32.NewProc("GetDC")
	ReleaseDC           = USER32.NewProc("ReleaseDC")
	GetSystemMetrics    = USER32.NewProc("GetSystemMetrics")
	SetProcessDpiAware  = USER32.NewProc("SetProcessDPIAware")
	EnumWindows         = USER32.NewProc("EnumWindows")
	GetWindowText       = USER32.NewProc("GetWindowTextW")
	GetWindowTextLength = USER32.NewProc("GetWindowTextLengthW")
	IsWindowVisible     = USER32.NewProc("IsWindowVisible")
	IsIconic            = USER32.NewProc("IsIconic")
)
