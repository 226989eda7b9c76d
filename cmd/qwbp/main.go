// Qwbp — CLI entry point.
//
// This tool bootstraps a direct P2P WebRTC connection between two
// terminals from a single exchange of two small payloads — the same
// payloads a paired mobile app would show and scan as QR codes. The
// exchange happens either over a one-shot LAN WebSocket bridge or by
// pasting base64 between terminals; after that, no infrastructure is
// involved.
//
// It can be launched interactively (no flags) or non-interactively via
// CLI flags (-listen, -connect, -manual).
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/magarcia/qwbp/internal/bridge"
	"github.com/magarcia/qwbp/internal/config"
	"github.com/magarcia/qwbp/internal/rtc"
	"github.com/magarcia/qwbp/internal/session"
	"github.com/magarcia/qwbp/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	listenFlag := flag.String("listen", "", "Run the payload bridge server on this address (e.g. :8799)")
	connectFlag := flag.String("connect", "", "Connect to a payload bridge URL (e.g. ws://host:8799/exchange?pin=1234)")
	manualFlag := flag.Bool("manual", false, "Exchange payloads by base64 copy-paste instead of the bridge")
	timeoutFlag := flag.Duration("timeout", 30*time.Second, "Session timeout")
	maxCandFlag := flag.Int("maxCandidates", 4, "Maximum candidates carried in the payload")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Qwbp — v%s", version))
	pterm.Println()

	cfg := config.Default()
	cfg.Timeout = *timeoutFlag
	cfg.MaxCandidates = *maxCandFlag

	var mode exchangeMode
	switch {
	case *manualFlag:
		mode = exchangeMode{manual: true}
	case *listenFlag != "":
		mode = exchangeMode{listenAddr: *listenFlag}
	case *connectFlag != "":
		mode = exchangeMode{connectURL: *connectFlag}
	default:
		mode = askMode(ctx)
	}

	if err := run(ctx, cfg, mode); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// exchangeMode selects how the two payloads change hands.
type exchangeMode struct {
	manual     bool
	listenAddr string
	connectURL string
}

// askMode falls back to interactive prompts when no mode flag is given.
func askMode(ctx context.Context) exchangeMode {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Wait    — run the bridge and wait for a peer",
			"Connect — connect to a peer's bridge",
			"Manual  — paste payloads by hand",
		}).
		WithDefaultText("How should the payloads be exchanged?").
		Show()

	pterm.Println()

	switch {
	case strings.HasPrefix(choice, "Wait"):
		return exchangeMode{listenAddr: ":0"}
	case strings.HasPrefix(choice, "Connect"):
		url, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Bridge URL").
			Show()
		return exchangeMode{connectURL: strings.TrimSpace(url)}
	default:
		return exchangeMode{manual: true}
	}
}

func run(ctx context.Context, cfg config.Config, mode exchangeMode) error {
	tr, err := rtc.New(cfg)
	if err != nil {
		return err
	}

	sess := session.New(tr, cfg)
	defer sess.Close()

	ready := make(chan session.DataChannel, 1)
	failed := make(chan error, 1)
	sess.OnReady(func(dc session.DataChannel) {
		select {
		case ready <- dc:
		default:
		}
	})
	sess.OnError(func(err error) {
		select {
		case failed <- err:
		default:
		}
	})
	sess.OnStateChange(func(st session.State) {
		util.LogDebug("session state: %s", st)
	})

	spinner, _ := pterm.DefaultSpinner.Start("Gathering network candidates...")
	if err := sess.Initialize(ctx); err != nil {
		spinner.Fail()
		return err
	}
	spinner.Success("Candidates gathered")

	payload, err := sess.GetPayload()
	if err != nil {
		return err
	}

	peerPayload, err := exchangePayloads(ctx, mode, payload)
	if err != nil {
		return err
	}

	if err := sess.ProcessScannedPayload(ctx, peerPayload); err != nil {
		return err
	}

	sas, err := sess.GetShortAuthString()
	if err != nil {
		return err
	}
	pterm.Println()
	pterm.Info.Printfln("Verification code: %s — confirm it matches on both sides", sas)
	pterm.Println()

	util.LogInfo("negotiating as %s", sess.Role())

	select {
	case dc := <-ready:
		util.LogInfo("connected — type messages, Ctrl+C to quit")
		return chat(ctx, dc)
	case err := <-failed:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exchangePayloads moves the payloads between the two sides according
// to the chosen mode and returns the peer's payload.
func exchangePayloads(ctx context.Context, mode exchangeMode, payload []byte) ([]byte, error) {
	encoded := base64.StdEncoding.EncodeToString(payload)

	switch {
	case mode.manual:
		pterm.Println()
		pterm.Info.Println("Your payload (share it with the peer):")
		pterm.Println(encoded)
		pterm.Println()
		pasted, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Peer payload").
			Show()
		return base64.StdEncoding.DecodeString(strings.TrimSpace(pasted))

	case mode.listenAddr != "":
		pin := bridge.GeneratePIN(4)
		srv := bridge.NewServer(pin)
		port, err := srv.Start(mode.listenAddr)
		if err != nil {
			return nil, err
		}
		defer srv.Close()

		pterm.Info.Printfln("Bridge running — peer connects with:")
		pterm.Printfln("  qwbp -connect \"ws://<this-host>:%d/exchange?pin=%s\"", port, pin)
		pterm.Println()
		pterm.Println("Waiting for peer...")

		conn, err := srv.WaitForPeer(ctx)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		return bridge.Exchange(ctx, conn, payload)

	default:
		conn, err := bridge.Dial(ctx, mode.connectURL)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		return bridge.Exchange(ctx, conn, payload)
	}
}

// chat runs a line-oriented conversation over the opened channel.
func chat(ctx context.Context, dc session.DataChannel) error {
	done := make(chan struct{})
	dc.OnMessage(func(data []byte) {
		pterm.Printfln("%s %s", pterm.Cyan("peer>"), string(data))
	})
	dc.OnClose(func() {
		close(done)
	})

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			if err := dc.Send(ctx, []byte(line)); err != nil {
				return err
			}
		case <-done:
			util.LogInfo("peer closed the channel")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
