// Command chores runs the chore-tracker backend.
//
//	chores serve   --config chores.yaml   # apply migrations, then serve HTTP
//	chores migrate --config chores.yaml   # apply migrations and exit
//
// Every setting can also come from the environment (see internal/config).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
