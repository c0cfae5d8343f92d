package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		if !errors.Is(err, errFindings) {
			fmt.Fprintln(os.Stderr, errorStyle.Sprint("error: ")+err.Error())
		}
		os.Exit(1)
	}
}
