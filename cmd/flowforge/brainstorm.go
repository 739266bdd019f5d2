package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowforge/flowforge/internal/executor"
)

// brainstormRawSpawner builds the executor.RawSpawner matching whatever
// --ssh-host/--ssh-* flags were given, mirroring buildTransport's
// local-vs-workstation split without going through the transport package
// (the chat variant never touches a project's files, so it has no use
// for transport.Transport's run/read/write surface).
func brainstormRawSpawner() executor.RawSpawner {
	if sshHost == "" {
		return executor.LocalSpawner{}
	}
	return executor.SSHSpawner{Host: sshHost, User: sshUser, Port: sshPort}
}

var brainstormCmd = &cobra.Command{
	Use:   "brainstorm",
	Short: "Hold a tool-less chat with the assistant, one line of input per turn",
	Long: `brainstorm reads one line from stdin at a time, replays the whole
conversation back to the assistant as a single prompt, and streams its
reply in fixed 100-byte chunks. A turn that produces no chunk within 30s,
or runs past 120s total, is killed and reported as timed out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		spawner := brainstormRawSpawner()
		command := []string{"claude"}

		var transcript []executor.ChatTurn
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Fprintln(os.Stderr, "brainstorm: type a message and press enter; Ctrl-D to quit")

		for scanner.Scan() {
			message := scanner.Text()
			if strings.TrimSpace(message) == "" {
				continue
			}

			chunks := executor.StreamBrainstorm(cmd.Context(), spawner, command, transcript, message)
			var reply strings.Builder
			for c := range chunks {
				if len(c.Data) > 0 {
					os.Stdout.Write(c.Data)
					reply.Write(c.Data)
				}
				if c.TimedOut {
					fmt.Fprintf(os.Stderr, "\nbrainstorm: %s\n", c.Message)
				}
			}
			fmt.Println()

			transcript = append(transcript,
				executor.ChatTurn{Role: "user", Text: message},
				executor.ChatTurn{Role: "assistant", Text: reply.String()},
			)
		}
		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(brainstormCmd)
}
