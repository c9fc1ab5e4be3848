package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dkeye/meshcall/internal/app/session"
	"github.com/dkeye/meshcall/internal/domain"
)

// controller is the part of *session.Session the command line drives.
type controller interface {
	Connect(ctx context.Context, peer string) error
	Disconnect(ctx context.Context, peer string) error
	DisconnectInbound(ctx context.Context, peer string) error
	AcquireMedia(ctx context.Context, alert bool) error
	MuteAudio(ctx context.Context) error
	UnmuteAudio(ctx context.Context) error
	MuteVideo(ctx context.Context) error
	UnmuteVideo(ctx context.Context) error
	StopVideo(ctx context.Context) error
	StopAudio(ctx context.Context) error
	RestartVideo(ctx context.Context) error
	RestartAudio(ctx context.Context) error
	StartBroadcast(ctx context.Context) error
	StopBroadcast(ctx context.Context) error
	Snapshot(ctx context.Context) (session.State, error)
}

type command struct {
	help string
	// peer commands take exactly one argument.
	peer bool
	run  func(ctx context.Context, s controller, arg string, out io.Writer) error
}

func simple(help string, fn func(controller, context.Context) error) command {
	return command{help: help, run: func(ctx context.Context, s controller, _ string, _ io.Writer) error {
		return fn(s, ctx)
	}}
}

func peerCmd(help string, fn func(controller, context.Context, string) error) command {
	return command{help: help, peer: true, run: func(ctx context.Context, s controller, arg string, _ io.Writer) error {
		return fn(s, ctx, arg)
	}}
}

var commands = map[string]command{
	"connect":        peerCmd("call a peer", controller.Connect),
	"disconnect":     peerCmd("hang up the call placed to a peer", controller.Disconnect),
	"disconnect-in":  peerCmd("hang up the call received from a peer", controller.DisconnectInbound),
	"acquire":        simple("start camera and microphone", func(s controller, ctx context.Context) error { return s.AcquireMedia(ctx, true) }),
	"mute":           simple("mute the microphone", controller.MuteAudio),
	"unmute":         simple("unmute the microphone", controller.UnmuteAudio),
	"mute-video":     simple("turn the camera picture off", controller.MuteVideo),
	"unmute-video":   simple("turn the camera picture on", controller.UnmuteVideo),
	"stop-video":     simple("release the camera", controller.StopVideo),
	"stop-audio":     simple("release the microphone", controller.StopAudio),
	"restart-video":  simple("acquire the camera again", controller.RestartVideo),
	"restart-audio":  simple("acquire the microphone again", controller.RestartAudio),
	"broadcast":      simple("amplify the microphone to every connected peer", controller.StartBroadcast),
	"stop-broadcast": simple("end the broadcast", controller.StopBroadcast),
	"state": {help: "print the session state", run: func(ctx context.Context, s controller, _ string, out io.Writer) error {
		st, err := s.Snapshot(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}},
}

// execute runs one command line. Blank lines are ignored.
func execute(ctx context.Context, s controller, line string, out io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]
	if name == "help" {
		printHelp(out)
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", name)
	}
	var arg string
	switch {
	case cmd.peer && len(args) != 1:
		return fmt.Errorf("%s takes one peer id", name)
	case cmd.peer:
		arg = args[0]
	case len(args) != 0:
		return fmt.Errorf("%s takes no arguments", name)
	}
	return cmd.run(ctx, s, arg, out)
}

// readCommands executes lines from in until it is exhausted or ctx ends.
// Command failures are reported on out and do not stop the reader.
func readCommands(ctx context.Context, s controller, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			if err := execute(ctx, s, line, out); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

func printHelp(out io.Writer) {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		c := commands[n]
		usage := n
		if c.peer {
			usage += " <peer>"
		}
		fmt.Fprintf(out, "  %-22s %s\n", usage, c.help)
	}
}

func describe(ev domain.Event) string {
	switch e := ev.(type) {
	case domain.VideoConnected:
		return fmt.Sprintf("video connected: %t", e.Connected)
	case domain.BroadcastNotice:
		return fmt.Sprintf("%s (for %s)", e.Message, e.TTL)
	case domain.MediaUnavailable:
		return e.Message
	default:
		return fmt.Sprintf("%T", ev)
	}
}
