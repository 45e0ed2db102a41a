// Package monitor renders a live view of every instance debug port.
package monitor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/andrei-cloud/go_reactor/internal/debugsrv"
)

// Fetcher returns the current status of the instance behind port.
type Fetcher interface {
	Status(port int) (debugsrv.StatusReply, error)
}

type row struct {
	port  int
	reply debugsrv.StatusReply
	err   error
}

type tickMsg time.Time

// refreshMsg carries fetched rows. Manual refreshes do not schedule a tick,
// so the periodic chain stays single.
type refreshMsg struct {
	rows   []row
	manual bool
}

type model struct {
	ports    []int
	fetch    Fetcher
	interval time.Duration
	rows     []row
	updated  time.Time
	quitting bool
}

func newModel(ports []int, fetch Fetcher, interval time.Duration) model {
	return model{ports: ports, fetch: fetch, interval: interval}
}

// Init requests the first refresh.
func (m model) Init() tea.Cmd {
	return m.refresh(false)
}

func (m model) refresh(manual bool) tea.Cmd {
	return func() tea.Msg {
		rows := make([]row, len(m.ports))
		for i, port := range m.ports {
			reply, err := m.fetch.Status(port)
			rows[i] = row{port: port, reply: reply, err: err}
		}

		return refreshMsg{rows: rows, manual: manual}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles key presses, ticks and refresh results.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true

			return m, tea.Quit
		case "r":
			return m, m.refresh(true)
		}
	case tickMsg:
		return m, m.refresh(false)
	case refreshMsg:
		m.rows = msg.rows
		m.updated = time.Now()
		if msg.manual {
			return m, nil
		}

		return m, m.tick()
	}

	return m, nil
}

// View renders the status table.
func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString("go_reactor instances\n")
	b.WriteString(strings.Repeat("=", 72) + "\n\n")
	fmt.Fprintf(&b, "%-6s %-8s %-8s %-7s %s\n", "PORT", "STATE", "RUNNING", "MODULES", "SCRIPT")

	for _, r := range m.rows {
		if r.err != nil {
			fmt.Fprintf(&b, "%-6d %-8s %s\n", r.port, "down", r.err)
			continue
		}

		state := "free"
		if r.reply.Busy {
			state = "busy"
		}
		running, modules, script := "-", "-", "-"
		if inst := r.reply.Instance; inst != nil {
			running = fmt.Sprintf("%t", inst.Running)
			modules = fmt.Sprintf("%d", inst.Modules)
			if inst.Script != "" {
				script = inst.Script
			}
		}
		fmt.Fprintf(&b, "%-6d %-8s %-8s %-7s %s\n", r.port, state, running, modules, script)
	}

	if !m.updated.IsZero() {
		fmt.Fprintf(&b, "\nupdated %s\n", m.updated.Format(time.TimeOnly))
	}
	b.WriteString("\n  r: refresh now\n  q or Ctrl+C: quit\n")

	return b.String()
}

type clientFetcher struct {
	host    string
	timeout time.Duration

	mu      sync.Mutex
	clients map[int]*debugsrv.Client
}

func (f *clientFetcher) client(port int) *debugsrv.Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.clients[port]
	if !ok {
		c = debugsrv.Dial(fmt.Sprintf("%s:%d", f.host, port), f.timeout)
		f.clients[port] = c
	}

	return c
}

func (f *clientFetcher) Status(port int) (debugsrv.StatusReply, error) {
	return f.client(port).Status()
}

func (f *clientFetcher) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.clients {
		c.Close()
	}
}

// Run starts the TUI over ports on host and blocks until the user quits.
func Run(host string, ports []int, interval time.Duration) error {
	f := &clientFetcher{host: host, timeout: interval, clients: make(map[int]*debugsrv.Client)}
	defer f.close()

	_, err := tea.NewProgram(newModel(ports, f, interval)).Run()

	return err
}
