// companion is a desk-side stand-in for the companion device: it sends
// command lines typed on stdin over the serial link and prints every line
// the robot answers with. With -watch it follows the telemetry event stream
// instead, and with -api it queries the telemetry HTTP API.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"

	"github.com/teslashibe/go-playbot/internal/httpc"
	"github.com/teslashibe/go-playbot/pkg/telemetry"
)

func main() {
	port := flag.String("port", "/dev/ttyACM0", "Serial port of the robot")
	baud := flag.Int("baud", 115200, "Baud rate")
	watch := flag.String("watch", "", "Telemetry websocket URL, e.g. ws://playbot.local:8080/ws/events")
	api := flag.String("api", "", "Telemetry base URL, e.g. http://playbot.local:8080")
	status := flag.Bool("status", false, "With -api: print the control loop snapshot")
	logs := flag.Bool("logs", false, "With -api: print the retained log history")
	send := flag.String("send", "", "With -api: queue one command on the robot")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch {
	case *api != "":
		err = query(ctx, httpc.New(*api, nil), *status, *logs, *send)
	case *watch != "":
		err = watchEvents(ctx, *watch)
	default:
		err = talk(ctx, *port, *baud)
	}
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func talk(ctx context.Context, name string, baud int) error {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer port.Close()

	fmt.Printf("🔌 Connected to %s at %d baud\n", name, baud)
	fmt.Println("   a/<file> play  x stop  b battery  d sensors  v verify  t/<turns>/<dir> rotate")

	go func() {
		<-ctx.Done()
		port.Close()
	}()

	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if _, err := io.WriteString(port, line+"\n"); err != nil {
				log.Printf("⚠️  write: %v", err)
				return
			}
		}
	}()

	sc := bufio.NewScanner(port)
	for sc.Scan() {
		fmt.Printf("← %s\n", sc.Text())
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}

func watchEvents(ctx context.Context, url string) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer ws.Close()

	go func() {
		<-ctx.Done()
		ws.Close()
	}()

	fmt.Printf("📡 Watching %s\n", url)
	for {
		var ev telemetry.Event
		if err := ws.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				log.Printf("⚠️  bad event: %v", err)
				continue
			}
			return err
		}
		switch ev.Kind {
		case telemetry.EventLog:
			fmt.Printf("%s [%s] %s\n", ev.Time.Format("15:04:05.000"), ev.Level, ev.Line)
		default:
			fmt.Printf("%s ← %s\n", ev.Time.Format("15:04:05.000"), strings.TrimRight(ev.Line, "\n"))
		}
	}
}

func query(ctx context.Context, c *httpc.Client, status, logs bool, send string) error {
	if send != "" {
		id, err := c.Send(ctx, send)
		if err != nil {
			return err
		}
		fmt.Printf("✅ queued %q (%s)\n", send, id)
	}
	if logs {
		entries, err := c.Logs(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s [%s] %s\n", e.Time.Format("15:04:05.000"), e.Level, e.Message)
		}
	}
	if status || (send == "" && !logs) {
		snap, err := c.Status(ctx)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}
