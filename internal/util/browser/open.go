package browser

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/cargoworks/cargo/internal/util"
)

// OpenBrowser attempts to launch the system browser on url. If launching fails,
// it returns an error whose message substitutes the caller's loopback hostname
// for this machine's outbound IP, since 127.0.0.1 links are rarely reachable
// from wherever the user ends up reading the error (e.g. a remote shell).
func OpenBrowser(url string) error {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}
	if err != nil {
		preferredHost := util.GetOutboundIP().String()
		reachable := strings.Replace(url, "127.0.0.1", preferredHost, -1)
		return fmt.Errorf("could not open browser, please visit: %s", reachable)
	}
	return nil
}
