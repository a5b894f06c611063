package main

import (
	"os"

	"github.com/sehyun-p/clubsync/internal/tools/obscheck"
)

func main() {
	if err := obscheck.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
