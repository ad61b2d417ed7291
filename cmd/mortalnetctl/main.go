// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

// Command mortalnetctl is a thin remote control for a running
// mortalnetd: it opens a plain chat connection, sends one admin line,
// prints the reply, and exits.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	addr     string
	password string
)

func sendAdminCommand(cmd string, args []string) error {
	pass := password
	if pass == "" {
		fmt.Fprint(os.Stderr, "Admin password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}
		pass = string(raw)
	}

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	reader := bufio.NewReader(conn)

	// Admin commands are only accepted from confirmed sessions, so
	// register a throwaway nick first, then look for the admin reply in
	// the stream: the registration burst (Y/J/history/MOTD) and any
	// concurrent chat traffic is skipped until a recognizable admin
	// response line arrives.
	if _, err := conn.Write([]byte("Nctl\n")); err != nil {
		return fmt.Errorf("registering: %w", err)
	}
	line := fmt.Sprintf("A%s %s %s\n", pass, cmd, strings.Join(args, " "))
	if _, err := conn.Write([]byte(strings.TrimRight(line, " \n") + "\n")); err != nil {
		return fmt.Errorf("sending command: %w", err)
	}

	for {
		reply, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading reply: %w", err)
		}
		reply = strings.TrimSpace(reply)
		if isAdminReply(reply) {
			fmt.Println(strings.TrimPrefix(reply, "S"))
			conn.Write([]byte("L\n"))
			return nil
		}
	}
}

// isAdminReply matches the fixed set of S-lines the server sends in
// response to an A command, distinguishing them from MOTD or chat
// traffic that may share the stream.
func isAdminReply(line string) bool {
	for _, prefix := range []string{
		"SKicked ", "SBanned ", "SReloaded ", "SMOTD updated.",
		"SUnknown command:", "SInvalid admin password.",
		"SAdmin commands are disabled", "SNo such user", "Susage:",
	} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func main() {
	root := &cobra.Command{
		Use:   "mortalnetctl",
		Short: "Remote control for a running mortalnetd",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "localhost:14883", "chat address of the server to control")
	root.PersistentFlags().StringVar(&password, "password", "", "admin password (prompted if omitted)")

	root.AddCommand(&cobra.Command{
		Use:   "kick <nick>",
		Short: "Disconnect a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAdminCommand("kick", args)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "ban <nick-or-ip>",
		Short: "Disconnect and ban a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAdminCommand("ban", args)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Reload the ban list and message of the day from disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAdminCommand("reload", nil)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "motd <text...>",
		Short: "Set the message of the day",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAdminCommand("motd", args)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
