package main

import (
	"os"

	"github.com/bhumitschaudhry/ConnectStorm/cmd/stormctl/cmd"
	"github.com/bhumitschaudhry/ConnectStorm/internal/common"
)

func main() {
	common.ConfigureCommandLineLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
