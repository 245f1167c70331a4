// Package infra implements the engine's adapters: presence transports,
// host state, persistent stores and process lookups.
package infra

import (
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/eliteGoblin/presenced/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// FindByName returns PIDs of processes whose name contains pattern,
// ignoring case.
func (pm *ProcessManagerImpl) FindByName(pattern string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var found []int
	patternLower := strings.ToLower(pattern)
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // exited while listing
		}
		if strings.Contains(strings.ToLower(name), patternLower) {
			found = append(found, int(p.Pid))
		}
	}
	return found, nil
}

// IsRunning checks if a PID exists.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)

// ServiceProbe wraps a PresenceClient and refuses to dial when no process
// of the presence service's desktop app is running, so a missing app is
// reported as NotRunning without waiting on a handshake.
type ServiceProbe struct {
	next        domain.PresenceClient
	processes   domain.ProcessManager
	processName string
	logger      *zap.Logger
}

// NewServiceProbe returns next guarded by a lookup of processName.
// An empty processName disables the probe.
func NewServiceProbe(next domain.PresenceClient, pm domain.ProcessManager, processName string, logger *zap.Logger) *ServiceProbe {
	return &ServiceProbe{
		next:        next,
		processes:   pm,
		processName: processName,
		logger:      logger,
	}
}

// Create dials next only when the service process is found.
func (p *ServiceProbe) Create(clientID int64) (domain.PresenceSession, domain.ResultCode) {
	if p.processName != "" {
		pids, err := p.processes.FindByName(p.processName)
		if err != nil {
			// Listing failed; let the dial decide.
			p.logger.Debug("process lookup failed", zap.Error(err))
		} else if len(pids) == 0 {
			p.logger.Debug("presence service process not found", zap.String("process", p.processName))
			return nil, domain.ResultNotRunning
		}
	}
	return p.next.Create(clientID)
}

var _ domain.PresenceClient = (*ServiceProbe)(nil)
