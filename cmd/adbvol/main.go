// Command adbvol mirrors a host volume control onto the media volume of an
// Android device attached over adb.
//
// Usage:
//
//	adbvol [run] [flags]      run the bridge
//	adbvol devices            list attached devices
//	adbvol cards              list ALSA sound cards
//	adbvol config             print the effective configuration
//	adbvol version            print version information
package main

import (
	"fmt"
	"os"

	"github.com/gen2brain/adbvol/cmd/adbvol/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
