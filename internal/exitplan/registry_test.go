package exitplan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLadders = `exit_ladders:
  standard:
    description: four rungs
    rungs:
      - trigger_profit: 1.00
        exit_fraction: 0.75
      - trigger_profit: 0.15
        exit_fraction: 0.25
      - trigger_profit: 0.60
        exit_fraction: 0.50
      - trigger_profit: 0.35
        exit_fraction: 0.40
  tight:
    rungs:
      - trigger_profit: 0.10
        exit_fraction: 0.50
`

func writeLadderFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ladders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistryLoadsAndSortsRungs(t *testing.T) {
	reg, err := NewRegistry(writeLadderFile(t, sampleLadders))
	require.NoError(t, err)

	assert.Equal(t, []string{"standard", "tight"}, reg.IDs())

	std, ok := reg.Ladder("standard")
	require.True(t, ok)
	assert.Equal(t, 1, std.Version)
	require.Len(t, std.Rungs, 4)
	// Rungs come back sorted by ascending trigger regardless of file order.
	assert.InDelta(t, 0.15, std.Rungs[0].TriggerProfit, 1e-9)
	assert.InDelta(t, 1.00, std.Rungs[3].TriggerProfit, 1e-9)
}

func TestRegistryRejectsInvalidLadder(t *testing.T) {
	bad := `exit_ladders:
  broken:
    rungs:
      - trigger_profit: 0.15
        exit_fraction: 1.5
`
	_, err := NewRegistry(writeLadderFile(t, bad))
	assert.Error(t, err)
}

func TestRegistryRejectsEmptyFile(t *testing.T) {
	_, err := NewRegistry(writeLadderFile(t, "exit_ladders: {}\n"))
	assert.Error(t, err)
}

func TestRegistryRejectsUnknownKeys(t *testing.T) {
	unknown := `exit_plans:
  standard:
    rungs: []
`
	_, err := NewRegistry(writeLadderFile(t, unknown))
	assert.Error(t, err)
}

func TestLadderIDDefaultsToMapKey(t *testing.T) {
	reg, err := NewRegistry(writeLadderFile(t, sampleLadders))
	require.NoError(t, err)
	tight, ok := reg.Ladder("tight")
	require.True(t, ok)
	assert.Equal(t, "tight", tight.ID)
}

func TestDefaultLadderMatchesStandard(t *testing.T) {
	l := DefaultLadder()
	require.Len(t, l.Rungs, 4)
	assert.InDelta(t, 0.15, l.Rungs[0].TriggerProfit, 1e-9)
	assert.InDelta(t, 0.25, l.Rungs[0].ExitFraction, 1e-9)
	assert.InDelta(t, 1.00, l.Rungs[3].TriggerProfit, 1e-9)
	assert.InDelta(t, 0.75, l.Rungs[3].ExitFraction, 1e-9)
}

func TestSnapshotIsACopy(t *testing.T) {
	reg, err := NewRegistry(writeLadderFile(t, sampleLadders))
	require.NoError(t, err)
	snap := reg.Snapshot()
	delete(snap.Ladders, "standard")

	_, ok := reg.Ladder("standard")
	assert.True(t, ok)
}
