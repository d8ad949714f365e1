// main is the entrypoint for the scantime CLI.
package main

import (
	"github.com/protonlab/scantime/cmd"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/internal/iocache"
)

func main() {
	cmd.SetCacheManager(iocache.Manager)

	err := cmd.Execute()

	iocache.CloseCaching()
	if perr := cmd.StopProfiling(); perr != nil {
		contract.LogWarn("Profiling shutdown failed", perr)
	}
	if err != nil {
		contract.LogFatal("Command failed", err)
	}
}
