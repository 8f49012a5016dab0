package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _                _        _                    _ _
 | |__  _   _  ___| | _____| |___   ____ _ _   _| | |_
 | '_ \| | | |/ __| |/ / _ \ __\ \ / / _` + "`" + ` | | | | | __|
 | |_) | |_| | (__|   <  __/ |_ \ V / (_| | |_| | | |_
 |_.__/ \__,_|\___|_|\_\___|\__| \_/ \__,_|\__,_|_|\__|

`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Client-side Credential Vault - Version %s\x1b[0m\n\n", Version)
}
