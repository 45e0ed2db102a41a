package debugsrv

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// startGrace is how long StartAll waits for a listener to fail early.
const startGrace = 200 * time.Millisecond

// Manager owns one debug server per pool slot.
type Manager struct {
	servers []*Server
}

// StartAll starts a debug server on host for each port. Servers resolve their
// instance per request, so they outlive pool rebuilds.
func StartAll(host string, ports []int, src Source) (*Manager, error) {
	m := &Manager{}
	for _, port := range ports {
		srv, err := NewServer(host, port, src)
		if err != nil {
			m.Stop()
			return nil, err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				m.Stop()
				return nil, fmt.Errorf("debug server %s: %w", srv.Address(), err)
			}
		case <-time.After(startGrace):
		}
		m.servers = append(m.servers, srv)
	}

	return m, nil
}

// Addresses returns the listen addresses in port order.
func (m *Manager) Addresses() []string {
	out := make([]string, len(m.servers))
	for i, s := range m.servers {
		out[i] = s.Address()
	}

	return out
}

// Stop shuts every server down.
func (m *Manager) Stop() {
	for _, s := range m.servers {
		if err := s.Stop(); err != nil {
			log.Error().Err(err).Str("address", s.Address()).Msg("error during debug server shutdown")
		}
	}
	m.servers = nil
}
