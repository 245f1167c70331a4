package infra

import (
	"errors"
	"os"
	"strings"

	"github.com/eliteGoblin/presenced/internal/domain"
)

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	runningPIDs map[int]bool
	names       map[int]string
	listErr     error
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
		names:       make(map[int]string),
	}
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var found []int
	for pid, name := range m.names {
		if strings.Contains(strings.ToLower(name), strings.ToLower(pattern)) {
			found = append(found, pid)
		}
	}
	return found, nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, name string) {
	m.runningPIDs[pid] = true
	m.names[pid] = name
}

var errListFailed = errors.New("list failed")

// countingClient is a PresenceClient that records Create calls
type countingClient struct {
	created []int64
}

func (c *countingClient) Create(clientID int64) (domain.PresenceSession, domain.ResultCode) {
	c.created = append(c.created, clientID)
	return nil, domain.ResultOK
}
