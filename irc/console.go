// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
)

// Console is a local, stdin-driven admin prompt for operators running
// the server attached to a terminal. It reuses AdminHandler directly,
// so "kick alice" typed here has identical effect to an A-prefixed line
// sent over the wire, minus the password: a local operator is already
// trusted.
type Console struct {
	admin *AdminHandler
	log   *Manager
}

// NewConsole builds a console bound to the shared admin handler.
func NewConsole(admin *AdminHandler, log *Manager) *Console {
	return &Console{admin: admin, log: log}
}

// Run reads commands from stdin until EOF or the "quit" command,
// dispatching each to the admin handler. Server.Run starts it in its
// own goroutine when --admin-console is set.
func (c *Console) Run() {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		cmd, err := line.Prompt("mortalnet> ")
		if err != nil {
			if err != io.EOF && err != liner.ErrPromptAborted {
				c.log.Warning("console", "read failed", err.Error())
			}
			return
		}
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		line.AppendHistory(cmd)

		if cmd == "quit" || cmd == "exit" {
			return
		}

		reply := c.admin.HandleTrusted(cmd)
		fmt.Println(strings.TrimPrefix(reply, "S"))
	}
}
