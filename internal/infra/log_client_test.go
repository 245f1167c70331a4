package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eliteGoblin/presenced/internal/domain"
)

func TestLogClient(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	session, code := NewLogClient(zap.New(core)).Create(99)
	require.Equal(t, domain.ResultOK, code)

	var results []domain.ResultCode
	session.UpdateActivity(domain.Activity{Type: domain.ActivityInMainMenu, Details: "In Main Menu"},
		func(c domain.ResultCode) { results = append(results, c) })
	assert.Empty(t, results, "completion waits for RunCallbacks")

	assert.Equal(t, domain.ResultOK, session.RunCallbacks())
	assert.Equal(t, []domain.ResultCode{domain.ResultOK}, results)

	entries := logs.FilterMessage("activity").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "In Main Menu", entries[0].ContextMap()["details"])

	session.Close()
	assert.Equal(t, domain.ResultInternalError, session.RunCallbacks())
}
