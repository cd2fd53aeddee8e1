package ffmpeg

import (
	"os/exec"
	"syscall"
)

// hideWindow keeps ffmpeg from flashing a console window under the GUI
func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}
