// signbridge CLI - command line client for the signbridge relay and
// recognition API.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/hearme/signbridge/clients/go/signbridge"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := signbridge.NewClient(os.Getenv("SIGNBRIDGE_URL"))
	name := os.Getenv("SIGNBRIDGE_NAME")
	if name == "" {
		name = "cli"
	}
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		if resp != nil {
			printJSON(resp)
		}
		exitOnError(err)

	case "predict":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: signbridge predict <alphabet|word> [file]")
			os.Exit(1)
		}
		landmarks, err := readLandmarks(os.Args[3:])
		exitOnError(err)
		resp, err := client.Predict(ctx, os.Args[2], landmarks)
		exitOnError(err)
		fmt.Printf("%s (class %d)\n", resp.Label, resp.Prediction)

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: signbridge send <room> <text> [partial|final]")
			os.Exit(1)
		}
		typ := signbridge.Final
		if len(os.Args) > 4 {
			typ = os.Args[4]
		}
		id, err := client.PostTranscription(ctx, os.Args[2], signbridge.Message{
			Type:            typ,
			Text:            os.Args[3],
			ParticipantType: signbridge.Hearing,
			ParticipantName: name,
		})
		exitOnError(err)
		fmt.Printf("Posted: %d\n", id)

	case "gesture":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: signbridge gesture <room> <text>")
			os.Exit(1)
		}
		id, err := client.PostGesture(ctx, os.Args[2], signbridge.Message{
			Text:            os.Args[3],
			ParticipantType: signbridge.Deaf,
			ParticipantName: name,
		})
		exitOnError(err)
		fmt.Printf("Posted: %d\n", id)

	case "follow":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: signbridge follow <room> [transcription|gesture]")
			os.Exit(1)
		}
		relay := signbridge.Transcriptions
		if len(os.Args) > 3 && os.Args[3] == "gesture" {
			relay = signbridge.Gestures
		}
		p := &signbridge.Poller{
			Client:  client,
			RoomID:  os.Args[2],
			Relay:   relay,
			OnError: func(err error) { fmt.Fprintln(os.Stderr, "Error:", err) },
		}
		err := p.Run(ctx, func(m signbridge.Message) {
			ts := m.Time().Format("15:04:05")
			if m.Type != "" {
				fmt.Printf("[%s] %s (%s, %s): %s\n", ts, m.ParticipantName, m.ParticipantType, m.Type, m.Text)
			} else {
				fmt.Printf("[%s] %s (%s): %s\n", ts, m.ParticipantName, m.ParticipantType, m.Text)
			}
		})
		if err != nil && ctx.Err() == nil {
			exitOnError(err)
		}

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`signbridge CLI - sign language relay and recognition

Usage: signbridge <command> [options]

Commands:
  predict <mode> [file]          Classify landmarks (JSON array or whitespace floats, stdin by default)
  send <room> <text> [type]      Post a transcription (type: partial|final)
  gesture <room> <text>          Post a recognized gesture
  follow <room> [relay]          Follow a room (relay: transcription|gesture)
  health                         Check server health

Environment:
  SIGNBRIDGE_URL    Server URL (default: ` + signbridge.DefaultURL + `)
  SIGNBRIDGE_NAME   Participant name for posts (default: cli)`)
}

// readLandmarks reads a JSON array or whitespace separated floats from the
// named file or stdin.
func readLandmarks(args []string) ([]float32, error) {
	in := os.Stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}

	r := bufio.NewReader(in)
	first, err := r.Peek(1)
	if err == nil && first[0] == '[' {
		var v []float32
		if err := json.NewDecoder(r).Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}

	var v []float32
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		f, err := strconv.ParseFloat(strings.TrimSuffix(sc.Text(), ","), 32)
		if err != nil {
			return nil, fmt.Errorf("landmark %d: %w", len(v), err)
		}
		v = append(v, float32(f))
	}
	return v, sc.Err()
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
