package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionExhaustive(t *testing.T) {
	all := append(append([]JobStage{}, StageOrder...), StageFailed)

	for _, from := range all {
		for _, to := range all {
			got := CanTransition(from, to)

			var want bool
			switch {
			case from.IsTerminal():
				want = false
			case to == StageFailed:
				want = true
			default:
				for _, next := range StageAdjacency[from] {
					if next == to {
						want = true
					}
				}
			}
			assert.Equalf(t, want, got, "transition %s -> %s", from, to)
		}
	}
}

func TestStageOrderFormsAChain(t *testing.T) {
	for i := 0; i < len(StageOrder)-1; i++ {
		from, to := StageOrder[i], StageOrder[i+1]
		assert.Truef(t, CanTransition(from, to), "happy path broken at %s -> %s", from, to)
	}
}

func TestTerminalStagesHaveNoOutgoingEdges(t *testing.T) {
	require.Empty(t, StageAdjacency[StageCompleted])
	require.Empty(t, StageAdjacency[StageFailed])
	assert.False(t, CanTransition(StageCompleted, StageFailed))
	assert.False(t, CanTransition(StageFailed, StageReceived))
}

func TestStageProgressCoversEveryStage(t *testing.T) {
	for _, s := range append(append([]JobStage{}, StageOrder...), StageFailed) {
		_, ok := StageProgress[s]
		assert.Truef(t, ok, "no progress entry for %s", s)
	}
	assert.Equal(t, 0, StageProgress[StageReceived])
	assert.Equal(t, 100, StageProgress[StageCompleted])
	assert.Equal(t, 100, StageProgress[StageFailed])
}

func TestParseTarget(t *testing.T) {
	got, ok := ParseTarget("oltp")
	require.True(t, ok)
	assert.Equal(t, TargetOLTP, got)

	_, ok = ParseTarget("warehouse")
	assert.False(t, ok)
}

func TestMapExtToFormat(t *testing.T) {
	assert.Equal(t, PDF, MapExtToFormat(".pdf"))
	assert.Equal(t, IMAGE, MapExtToFormat("JPEG"))
	assert.Equal(t, TXT, MapExtToFormat("txt"))
	assert.Equal(t, FileFormat(""), MapExtToFormat("docx"))
}
