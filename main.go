package main

import (
	"os"

	"swipechat/ui"
)

func main() {
	if err := ui.Execute(); err != nil {
		os.Exit(1)
	}
}
