// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package main

import (
	"fmt"
	"os"

	"github.com/mortalnet/mortalnet/irc"
)

func main() {
	cfg, err := irc.ParseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := irc.NewManager(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	server, err := irc.NewServer(cfg, log)
	if err != nil {
		log.Error("startup", err.Error())
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Error("startup", err.Error())
		os.Exit(1)
	}
}
