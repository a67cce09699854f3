package app

import (
	"fmt"
	"os"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sai-itkc2020/ai-notetaker/internal/config"
	"github.com/sai-itkc2020/ai-notetaker/internal/daemon"
)

// TestLiveTUIFlow exercises the full TUI model lifecycle against a running
// daemon. Skipped if the daemon isn't running.
func TestLiveTUIFlow(t *testing.T) {
	sockPath := config.DefaultSocketPath()
	if _, err := os.Stat(sockPath); os.IsNotExist(err) {
		t.Skip("daemon not running")
	}

	m := New()

	m, _ = applyUpdate(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	view := m.View()
	if view == "Initializing..." {
		t.Error("view should render after WindowSizeMsg")
	}

	// Command connection.
	client, err := daemon.Connect(sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	// Event connection.
	evClient, err := daemon.Connect(sockPath)
	if err != nil {
		t.Fatalf("connect event: %v", err)
	}
	defer evClient.Close()

	m, _ = applyUpdate(m, DaemonConnectedMsg{Client: client, EvClient: evClient})
	if !m.connected {
		t.Fatal("expected connected")
	}

	resp, err := client.SendCommand(daemon.Command{Cmd: "status"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	m, _ = applyUpdate(m, StatusResponseMsg{Response: resp})
	fmt.Printf("Status: state=%q processing=%v\n", m.state, m.processing)

	resp, err = client.SendCommand(daemon.Command{Cmd: "devices"})
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	m, _ = applyUpdate(m, DevicesResponseMsg{Response: resp})
	fmt.Printf("Devices: %v\n", m.devices)

	resp, err = client.SendCommand(daemon.Command{Cmd: "sessions"})
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	m, _ = applyUpdate(m, SessionsResponseMsg{Response: resp})
	fmt.Printf("Sessions: %d\n", len(m.sessions))

	fmt.Println("\n=== Connected Idle View ===")
	fmt.Println(m.View())

	if err := evClient.Subscribe(nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	resp, err = client.SendCommand(daemon.Command{Cmd: "start", Streaming: daemon.BoolPtr(true)})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	m, _ = applyUpdate(m, StartResponseMsg{Response: resp})
	if !resp.OK {
		t.Fatalf("start failed: %s", resp.Error)
	}
	fmt.Printf("\nStarted: sessionId=%s\n", resp.SessionID)

	// Collect events for 3 seconds and feed them into the model.
	eventCounts := map[string]int{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.After(3 * time.Second)
		for {
			select {
			case <-deadline:
				return
			default:
				ev, err := evClient.ReadEvent()
				if err != nil {
					fmt.Printf("Event read error: %v\n", err)
					return
				}
				eventCounts[ev.Event]++
				m.handleEvent(ev)
				switch ev.Event {
				case "entry":
					fmt.Printf("  entry: %q (seq=%v)\n", ev.Text, ev.SequenceNumber)
				case "status":
					fmt.Printf("  status: state=%q\n", ev.State)
				case "error":
					fmt.Printf("  error: %s\n", ev.Message)
				default:
					fmt.Printf("  %s event\n", ev.Event)
				}
			}
		}
	}()
	<-done

	fmt.Println("\n=== Recording View ===")
	fmt.Println(m.View())

	// Two-phase stop: request, then confirm.
	resp, err = client.SendCommand(daemon.Command{Cmd: "stop"})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	m, _ = applyUpdate(m, StopResponseMsg{Response: resp})

	resp, err = client.SendCommand(daemon.Command{Cmd: "confirm"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	m, _ = applyUpdate(m, ConfirmResponseMsg{Response: resp})
	fmt.Printf("\nConfirmed stop: processing=%v\n", resp.Processing)

	fmt.Println("\n=== Final View ===")
	fmt.Println(m.View())

	fmt.Println("\n=== Event Summary ===")
	total := 0
	for evType, count := range eventCounts {
		fmt.Printf("  %s: %d\n", evType, count)
		total += count
	}
	fmt.Printf("  Total: %d events\n", total)
	fmt.Printf("  Transcript entries: %d\n", len(m.entries))

	if total == 0 {
		t.Error("expected at least some events during 3s recording")
	}
}

func applyUpdate(m Model, msg tea.Msg) (Model, tea.Cmd) {
	newModel, cmd := m.Update(msg)
	return newModel.(Model), cmd
}
