package executor

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"
)

// Chat/brainstorm streaming tuning (spec.md §4.E, "Streaming (chat
// variant)"): fixed 100-byte chunks, a 30s ceiling on any single chunk
// read, and a 120s ceiling on the whole turn. The two timeouts are vars,
// not consts, so tests can shrink them instead of waiting out real
// ceilings.
const BrainstormChunkSize = 100

var (
	BrainstormChunkTimeout = 30 * time.Second
	BrainstormTurnCeiling  = 120 * time.Second
)

// ChatTurn is one message in a brainstorm conversation's transcript.
type ChatTurn struct {
	Role string // "user" or "assistant"
	Text string
}

// ChatChunk is one piece of a brainstorm turn's output. TimedOut is set
// when a ceiling expired before the child produced (or finished) output;
// Done marks the last chunk of the turn, successful or not.
type ChatChunk struct {
	Data     []byte
	Done     bool
	TimedOut bool
	Message  string
}

// defaultChatPreamble is prepended to every rebuilt prompt. The chat
// variant is tool-less and stateless between turns: there is no
// persistent session to append to, so the whole conversation is replayed
// every turn (spec.md §4.E).
const defaultChatPreamble = "You are in a brainstorming conversation. Reply to the latest message only; do not read or write files.\n\n"

// BuildBrainstormPrompt rebuilds transcript plus the new userMessage into
// a single prompt for one turn.
func BuildBrainstormPrompt(transcript []ChatTurn, userMessage string) string {
	var sb strings.Builder
	sb.WriteString(defaultChatPreamble)
	for _, turn := range transcript {
		sb.WriteString(turn.Role)
		sb.WriteString(": ")
		sb.WriteString(turn.Text)
		sb.WriteString("\n")
	}
	sb.WriteString("user: ")
	sb.WriteString(userMessage)
	return sb.String()
}

// StreamBrainstorm runs one turn of the tool-less chat variant that
// shares executor's spawn path (spec.md §4.E). It rebuilds transcript and
// userMessage into a single prompt, spawns command with no working
// directory (no file access), and streams the child's combined output in
// fixed BrainstormChunkSize chunks. Each read is bounded by whichever is
// sooner: BrainstormChunkTimeout from the read's start, or
// BrainstormTurnCeiling from the turn's start. Either ceiling's expiry
// kills the child and yields one final TimedOut chunk; a closed stream
// without either ceiling expiring yields one final chunk with neither
// flag set.
func StreamBrainstorm(ctx context.Context, spawner RawSpawner, command []string, transcript []ChatTurn, userMessage string) <-chan ChatChunk {
	out := make(chan ChatChunk, 8)
	go runBrainstormTurn(ctx, spawner, command, transcript, userMessage, out)
	return out
}

func runBrainstormTurn(ctx context.Context, spawner RawSpawner, command []string, transcript []ChatTurn, userMessage string, out chan<- ChatChunk) {
	defer close(out)

	prompt := BuildBrainstormPrompt(transcript, userMessage)
	argv := append(append([]string(nil), command...), prompt)

	child, err := spawner.SpawnRaw(ctx, argv, "")
	if err != nil {
		out <- ChatChunk{Done: true, Message: err.Error()}
		return
	}

	turnDeadline := time.Now().Add(BrainstormTurnCeiling)
	buf := make([]byte, BrainstormChunkSize)

	for {
		chunkDeadline := time.Now().Add(BrainstormChunkTimeout)
		deadline := chunkDeadline
		if turnDeadline.Before(deadline) {
			deadline = turnDeadline
		}
		if err := child.SetReadDeadline(deadline); err != nil {
			child.Kill()
			out <- ChatChunk{Done: true, Message: err.Error()}
			return
		}

		n, readErr := child.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			out <- ChatChunk{Data: data}
		}

		if readErr != nil {
			if isReadTimeout(readErr) {
				child.Kill()
				msg := "chunk read timed out"
				if !time.Now().Before(turnDeadline) {
					msg = "turn ceiling exceeded"
				}
				out <- ChatChunk{Done: true, TimedOut: true, Message: msg}
				return
			}
			child.Wait()
			out <- ChatChunk{Done: true}
			return
		}

		if !time.Now().Before(turnDeadline) {
			child.Kill()
			out <- ChatChunk{Done: true, TimedOut: true, Message: "turn ceiling exceeded"}
			return
		}
	}
}

func isReadTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
