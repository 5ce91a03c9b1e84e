package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flailbot/flailbot/internal/api"
	"github.com/flailbot/flailbot/internal/cli"
	"github.com/flailbot/flailbot/internal/config"
	"github.com/flailbot/flailbot/internal/events"
	"github.com/flailbot/flailbot/internal/protocol"
	"github.com/flailbot/flailbot/internal/util"
)

func decodeCmd() *cobra.Command {
	var (
		file      string
		protoVer  string
		intents   []string
		logLevel  string
		showTable bool
	)

	cmd := &cobra.Command{
		Use:   "decode [hex-frame...]",
		Short: "Decode captured frames and print the resulting events and world",
		Long: `Decode one or more inbound frames given as hex strings, either as
arguments or one per line in a file ("-" reads stdin). Lines starting
with # are ignored. Frames are decoded in order against one entity table,
so partial updates can refer to entities created by earlier frames.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			util.InitConsoleLogger(logLevel, cmd.ErrOrStderr())

			cc := config.DefaultConfig().Client
			cc.ProtocolVersion = protoVer
			cc.Intents = intents
			opts, err := parserOptions(cc)
			if err != nil {
				return err
			}

			frames, err := collectFrames(args, file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(frames) == 0 {
				return fmt.Errorf("no frames given")
			}

			return decodeFrames(cmd.OutOrStdout(), frames, opts, showTable)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one hex frame per line")
	cmd.Flags().StringVarP(&protoVer, "protocol", "p", config.ProtocolAuto, "record layout: auto, v1 or v2")
	cmd.Flags().StringSliceVar(&intents, "intents",
		[]string{config.IntentEntities, config.IntentEvents, config.IntentLeaderboard},
		"frame families to decode")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level for decode diagnostics")
	cmd.Flags().BoolVar(&showTable, "world", true, "print the entity table and leaderboard after the event log")

	return cmd
}

// collectFrames gathers hex frames from args and the optional file.
func collectFrames(args []string, file string, stdin io.Reader) ([][]byte, error) {
	var lines []string
	lines = append(lines, args...)

	if file != "" {
		var r io.Reader = stdin
		if file != "-" {
			f, err := os.Open(file)
			if err != nil {
				return nil, fmt.Errorf("failed to open frame file: %w", err)
			}
			defer f.Close()
			r = f
		}
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read frame file: %w", err)
		}
	}

	var frames [][]byte
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		frame, err := parseHex(line)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i+1, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// parseHex accepts "a0 00 01", "a0:00:01", "0xa00001" and plain hex.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(s)
	return hex.DecodeString(s)
}

// decodeFrames runs frames through a parser and renders what it emitted.
func decodeFrames(out io.Writer, frames [][]byte, opts protocol.Options, showWorld bool) error {
	bus := events.NewEventBus()
	eventLog := cli.NewEventLog()
	eventLog.Attach(bus)
	state := api.NewWorldState()
	state.Attach(bus)

	parser := protocol.NewParser(bus, opts)

	failed := 0
	for i, frame := range frames {
		bus.OnMessage(frame)
		if err := parser.Parse(frame); err != nil {
			failed++
			name := "empty"
			if len(frame) > 0 {
				name = protocol.OpcodeName(frame[0])
			}
			fmt.Fprintf(out, "frame %d (%s): %v\n", i+1, name, err)
		}
	}

	fmt.Fprintf(out, "\nEvents (%d frames, %d failed)\n", len(frames), failed)
	cli.RenderEvents(out, eventLog.Rows())

	if showWorld {
		fmt.Fprintf(out, "\nEntities (%d live)\n", parser.Table().Len())
		cli.RenderEntities(out, state.Entities(""))

		if lb := state.Leaderboard(); len(lb.Entries) > 0 {
			fmt.Fprintln(out, "\nLeaderboard")
			cli.RenderLeaderboard(out, lb)
		}
	}
	return nil
}
