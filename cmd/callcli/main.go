// Command callcli is an interactive demo client: it logs into a relay
// server, attaches a call manager to the signaling websocket, and drives
// calls from stdin. Media runs on the loopback engine, so two instances can
// exercise the full invite/accept/hangup flow without an RTC deployment.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirecall/internal/backend"
	"github.com/vovakirdan/wirecall/internal/call"
	"github.com/vovakirdan/wirecall/internal/log"
	"github.com/vovakirdan/wirecall/internal/relay"
	"github.com/vovakirdan/wirecall/internal/rtc"
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "relay server base URL")
		username  = flag.String("user", "", "username")
		password  = flag.String("pass", "", "password")
		register  = flag.Bool("register", false, "register a new account instead of logging in")
		appKey    = flag.String("app-key", "wirecall-dev", "application key for RTC credentials")
		logLevel  = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: callcli -user <name> -pass <password> [-register]")
		os.Exit(1)
	}

	logger := log.New(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token, err := authenticate(ctx, *serverURL, *username, *password, *register)
	if err != nil {
		fmt.Fprintf(os.Stderr, "auth failed: %v\n", err)
		os.Exit(1)
	}

	tokens := backend.New(*serverURL, logger)
	tokens.SetAuthToken(token)

	wsURL := strings.Replace(*serverURL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial signaling: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	adapter := rtc.NewLoopback(nil)
	mgr := call.NewManager(call.Config{
		SelfID: *username,
		AppKey: *appKey,
	}, adapter, tokens, &wsSender{conn: conn}, logger)
	adapter.SetEvents(mgr)

	mgr.Subscribe(call.ListenerFunc(printSnapshot))

	go mgr.Run(ctx)
	go receiveLoop(ctx, conn, mgr)

	fmt.Printf("connected as %s. commands: call <user> [audio], group <u1,u2,..>, accept, refuse, cancel, hangup, mute, unmute, status, quit\n", *username)
	repl(ctx, mgr)
}

// wsSender delivers signaling payloads through the relay connection.
type wsSender struct {
	conn *websocket.Conn
}

func (s *wsSender) Send(ctx context.Context, toUserID string, payload []byte) error {
	return wsjson.Write(ctx, s.conn, relay.Envelope{To: toUserID, Payload: payload})
}

func receiveLoop(ctx context.Context, conn *websocket.Conn, mgr *call.Manager) {
	for {
		var env relay.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "signaling connection lost: %v\n", err)
			}
			return
		}
		if err := mgr.Deliver(env.From, env.Payload); err != nil {
			fmt.Fprintf(os.Stderr, "dropped signal from %s: %v\n", env.From, err)
		}
	}
}

func repl(ctx context.Context, mgr *call.Manager) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <user> [audio]")
				continue
			}
			kind := call.KindVideo
			if len(fields) > 2 && fields[2] == "audio" {
				kind = call.KindAudio
			}
			_, err = mgr.StartCall(kind, []string{fields[1]})
		case "group":
			if len(fields) < 2 {
				fmt.Println("usage: group <user,user,...>")
				continue
			}
			_, err = mgr.StartCall(call.KindMultiVideo, strings.Split(fields[1], ","))
		case "accept":
			err = mgr.AcceptActive()
		case "refuse":
			err = mgr.RefuseActive()
		case "cancel":
			err = mgr.CancelActive()
		case "hangup":
			err = mgr.HangUpActive()
		case "mute":
			err = mgr.SetMediaFlag(rtc.TrackAudio, true)
		case "unmute":
			err = mgr.SetMediaFlag(rtc.TrackAudio, false)
		case "camera":
			err = mgr.SwitchCamera()
		case "status":
			printSnapshot(mgr.Snapshot())
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func printSnapshot(snap call.Snapshot) {
	if !snap.Active() {
		if snap.Reason != "" {
			fmt.Printf("\n[call %s ended: %s]\n> ", snap.CallID, snap.Reason)
		} else {
			fmt.Print("\n[idle]\n> ")
		}
		return
	}

	var roster []string
	for _, p := range snap.Roster {
		roster = append(roster, fmt.Sprintf("%s(%s)", p.UserID, p.Status))
	}
	fmt.Printf("\n[call %s %s %s roster: %s]\n> ",
		snap.CallID, snap.State, snap.Kind.Media, strings.Join(roster, " "))
}

func authenticate(ctx context.Context, serverURL, username, password string, register bool) (string, error) {
	path := "/api/login"
	if register {
		path = "/api/register"
	}

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return "", fmt.Errorf("%s: %s", path, apiErr.Error)
		}
		return "", fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}

	var auth struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", err
	}
	return auth.Token, nil
}
