// Command stakectl is a command-line client for the staking API. Commands
// that act on behalf of an address sign their requests with that
// address's key.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
