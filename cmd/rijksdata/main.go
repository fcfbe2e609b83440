package main

import (
	"github.com/rijksmuseum/rijksdata-retrieval/cmd/rijksdata/cmd"
)

func main() {
	// logger.Init() is deferred to newApp, which calls SetLevel first:
	// the level is only known once the config file has been loaded.
	cmd.Execute()
}
