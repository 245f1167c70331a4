package infra

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/presenced/internal/domain"
)

// hostState is the document the game client writes on every page change.
type hostState struct {
	Context      string      `yaml:"context"`
	Reconnecting bool        `yaml:"reconnecting"`
	Player       *hostPlayer `yaml:"player"`
}

type hostPlayer struct {
	Name       string `yaml:"name"`
	Age        int    `yaml:"age"`
	Expression *int   `yaml:"expression"` // Absent means no expression
	Male       bool   `yaml:"male"`
}

// stampResolution is the coarsest mtime granularity expected (HFS+ stores
// whole seconds). A file modified more recently than this can change again
// without its mtime or size moving, so its content hash is checked instead.
const stampResolution = 2 * time.Second

// StateFile implements domain.GameState over the host's YAML state file.
// Refresh reparses only when the file's stamp or content changes; readers
// see the last good parse.
type StateFile struct {
	path   string
	logger *zap.Logger

	modTime time.Time
	size    int64
	sum     [sha256.Size]byte
	state   hostState
	player  *domain.Player
}

// NewStateFile returns a reader for path. Nothing is read until Refresh.
func NewStateFile(path string, logger *zap.Logger) *StateFile {
	return &StateFile{path: path, logger: logger}
}

// Refresh rereads the file if it changed. A missing file clears the state.
// A malformed file keeps the previous state and returns the error.
func (f *StateFile) Refresh() error {
	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		if !f.modTime.IsZero() {
			f.logger.Info("host state file removed", zap.String("path", f.path))
		}
		f.reset()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat host state: %w", err)
	}
	sameStamp := info.ModTime().Equal(f.modTime) && info.Size() == f.size
	if sameStamp && time.Since(info.ModTime()) > stampResolution {
		return nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read host state: %w", err)
	}
	sum := sha256.Sum256(data)
	if !f.modTime.IsZero() && sum == f.sum {
		f.modTime, f.size = info.ModTime(), info.Size()
		return nil
	}

	// Remember the stamp and hash first so a half-written file is not
	// reparsed every tick.
	f.modTime, f.size, f.sum = info.ModTime(), info.Size(), sum

	var st hostState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to parse host state %s: %w", f.path, err)
	}

	f.state = st
	f.player = toPlayer(st.Player)
	f.logger.Debug("host state reloaded",
		zap.String("context", st.Context),
		zap.Bool("has_player", f.player != nil))
	return nil
}

func (f *StateFile) reset() {
	f.modTime, f.size, f.sum = time.Time{}, 0, [sha256.Size]byte{}
	f.state = hostState{}
	f.player = nil
}

// Context returns the page the host is showing.
func (f *StateFile) Context() domain.UIContext { return domain.UIContext(f.state.Context) }

// Player returns the local player, or nil.
func (f *StateFile) Player() *domain.Player { return f.player }

// Reconnecting reports the host's reconnect flag.
func (f *StateFile) Reconnecting() bool { return f.state.Reconnecting }

func toPlayer(p *hostPlayer) *domain.Player {
	if p == nil {
		return nil
	}
	expr := domain.NoExpression
	if p.Expression != nil {
		expr = *p.Expression
	}
	return &domain.Player{
		DisplayName:  p.Name,
		Age:          p.Age,
		ExpressionID: expr,
		Male:         p.Male,
	}
}

var _ domain.GameState = (*StateFile)(nil)
