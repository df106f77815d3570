// Command flowguard serves and runs the network traffic classifier.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flowguard:", err)
		os.Exit(1)
	}
}
