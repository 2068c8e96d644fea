// Command fallbackgw-cli validates gateway configuration and sends one-off
// prompts through the fallback chain.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
