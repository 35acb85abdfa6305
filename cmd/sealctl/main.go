package main

import (
	"log"
	"os"

	"github.com/ruteri/sealed-config/cmd/flags"
	"github.com/ruteri/sealed-config/common"
	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "sealctl",
		Usage:   "Encrypt configuration values for sets of principals and manage them on node records",
		Version: common.Version,
		Flags:   append(append([]cli.Flag{}, flags.LogFlags...), flags.EngineFlags...),
		Commands: []*cli.Command{
			keygenCommand,
			tokenCommand,
			createCommand,
			loadCommand,
			updateCommand,
			existsCommand,
			sealCommand,
			unsealCommand,
			resealCommand,
			inspectCommand,
			resolveCommand,
			renderCommand,
			serveCommand,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
