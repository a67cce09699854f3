package app

// Key binding constants used in handleKey.
const (
	KeyQuit        = "q"
	KeyQuitUpper   = "Q"
	KeyCtrlC       = "ctrl+c"
	KeySpace       = " "
	KeyTab         = "tab"
	KeyUp          = "up"
	KeyDown        = "down"
	KeyJ           = "j"
	KeyK           = "k"
	KeyEnter       = "enter"
	KeyEsc         = "esc"
	KeyCycleDevice = "i"
	KeyLive        = "l"
	KeyRefine      = "r"
	KeySummarize   = "s"
	KeyExport      = "e"
	KeyResume      = "u"
	KeyDiscard     = "d"
)
