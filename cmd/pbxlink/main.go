// Command pbxlink is a command-line front end for the asterisk-api bridge:
// place and control calls, speak text, and tail the live event stream.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pbxlink-go/pbxlink/internal/dotenv"
	"github.com/pbxlink-go/pbxlink/pkg/config"
	"github.com/pbxlink-go/pbxlink/pkg/core/dialog"
	"github.com/pbxlink-go/pbxlink/pkg/core/types"
	pbxlink "github.com/pbxlink-go/pbxlink/sdk"
)

const usage = `usage: pbxlink <command> [flags]

commands:
  call     place an outbound call
  status   show one call
  list     list active calls
  speak    speak text on a call
  hangup   hang up a call
  dtmf     send DTMF digits to a call
  health   check bridge connectivity
  listen   tail the live event stream until interrupted

Configuration comes from PBXLINK_* environment variables; a .env file in the
current directory is loaded first.
`

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(stderr, "pbxlink: %v\n", err)
		return 1
	}

	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(stderr, "pbxlink: %v\n", err)
		return 1
	}

	opts := []pbxlink.ClientOption{
		pbxlink.WithBaseURL(cfg.BridgeURL),
		pbxlink.WithAPIKey(cfg.BridgeAPIKey),
		pbxlink.WithLogger(logger),
	}
	if cfg.ReconnectDelay > 0 {
		opts = append(opts, pbxlink.WithReconnectDelay(cfg.ReconnectDelay))
	}
	client := pbxlink.NewClient(opts...)

	cmd, rest := args[0], args[1:]
	if err := runCommand(ctx, cmd, rest, cfg, client, logger, stdout); err != nil {
		if err == flag.ErrHelp {
			return 2
		}
		fmt.Fprintf(stderr, "pbxlink %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

func runCommand(ctx context.Context, cmd string, args []string, cfg config.Config,
	client *pbxlink.Client, logger *slog.Logger, stdout io.Writer) error {
	switch cmd {
	case "call":
		return cmdCall(ctx, args, cfg, client, stdout)
	case "status":
		return cmdStatus(ctx, args, client, stdout)
	case "list":
		return cmdList(ctx, args, client, stdout)
	case "speak":
		return cmdSpeak(ctx, args, client, stdout)
	case "hangup":
		return cmdHangup(ctx, args, client, stdout)
	case "dtmf":
		return cmdDTMF(ctx, args, client, stdout)
	case "health":
		return cmdHealth(ctx, args, client, stdout)
	case "listen":
		return cmdListen(ctx, args, client, logger, stdout)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(stdout io.Writer, v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdCall(ctx context.Context, args []string, cfg config.Config,
	client *pbxlink.Client, stdout io.Writer) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	to := fs.String("to", cfg.ToNumber, "destination number (E.164) resolved through the trunk")
	endpoint := fs.String("endpoint", "", "explicit SIP endpoint (overrides -to)")
	from := fs.String("from", cfg.FromNumber, "caller ID")
	timeout := fs.Int("timeout", 0, "dial timeout in seconds (0 = bridge default)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dial := *endpoint
	if dial == "" {
		dial = cfg.TrunkEndpoint(*to)
	}
	resp, err := client.Originate(ctx, dial, *from, *timeout)
	if err != nil {
		return err
	}
	return printJSON(stdout, resp)
}

func cmdStatus(ctx context.Context, args []string, client *pbxlink.Client, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: pbxlink status <call-id>")
	}
	call, err := client.GetCall(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(stdout, call)
}

func cmdList(ctx context.Context, args []string, client *pbxlink.Client, stdout io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	list, err := client.ListCalls(ctx)
	if err != nil {
		return err
	}
	if list == nil {
		list = []types.Call{}
	}
	return printJSON(stdout, list)
}

func cmdSpeak(ctx context.Context, args []string, client *pbxlink.Client, stdout io.Writer) error {
	fs := flag.NewFlagSet("speak", flag.ContinueOnError)
	voice := fs.String("voice", "", "TTS voice")
	language := fs.String("language", "", "TTS language")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: pbxlink speak <call-id> <text...>")
	}
	callID := fs.Arg(0)
	text := strings.Join(fs.Args()[1:], " ")

	resp, err := client.Speak(ctx, callID, text, pbxlink.SpeakOptions{
		Voice:    *voice,
		Language: *language,
	})
	if err != nil {
		return err
	}
	return printJSON(stdout, resp)
}

func cmdHangup(ctx context.Context, args []string, client *pbxlink.Client, stdout io.Writer) error {
	fs := flag.NewFlagSet("hangup", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: pbxlink hangup <call-id>")
	}
	resp, err := client.Hangup(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(stdout, resp)
}

func cmdDTMF(ctx context.Context, args []string, client *pbxlink.Client, stdout io.Writer) error {
	fs := flag.NewFlagSet("dtmf", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: pbxlink dtmf <call-id> <digits>")
	}
	resp, err := client.SendDTMF(ctx, fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	return printJSON(stdout, resp)
}

func cmdHealth(ctx context.Context, args []string, client *pbxlink.Client, stdout io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	health, err := client.Health(ctx)
	if err != nil {
		return err
	}
	return printJSON(stdout, health)
}

func cmdListen(ctx context.Context, args []string, client *pbxlink.Client,
	logger *slog.Logger, stdout io.Writer) error {
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	manager := pbxlink.NewEventManager(client, &printingAgent{out: stdout, logger: logger},
		pbxlink.WithManagerLogger(logger))
	if err := manager.Start(); err != nil {
		// The manager keeps retrying in the background; report and stay up.
		logger.Warn("initial connection failed, retrying", "error", err)
	}
	defer manager.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		return nil
	}
}

// printingAgent writes one JSON line per event to stdout.
type printingAgent struct {
	out    io.Writer
	logger *slog.Logger
}

type eventLine struct {
	Time  string      `json:"time"`
	Type  string      `json:"type"`
	Call  string      `json:"callId,omitempty"`
	Event types.Event `json:"event"`
}

func (a *printingAgent) OnCallEvent(event types.Event) {
	line := eventLine{
		Time:  time.Now().Format(time.RFC3339),
		Type:  event.EventType(),
		Call:  event.Call(),
		Event: event,
	}
	if err := json.NewEncoder(a.out).Encode(line); err != nil {
		a.logger.Warn("write event line failed", "error", err)
	}
}

func (a *printingAgent) OnTranscriptionFinal(ctx context.Context, callID, text string, convo *dialog.Context) error {
	a.logger.Info("utterance", "call", callID, "text", text)
	return nil
}
