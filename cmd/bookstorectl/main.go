// Command bookstorectl provisions admin grants and runs schema migrations
// against the bookstore database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openGormStore).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
