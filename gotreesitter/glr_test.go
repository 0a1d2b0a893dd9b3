package gotreesitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVersion(id uint32, state StateID, cost uint32, prec int32) *stackVersion {
	return &stackVersion{
		id:   id,
		head: &stackNode{state: state, errorCost: cost, dynPrec: prec},
	}
}

func TestBetterVersionOrder(t *testing.T) {
	tests := []struct {
		name string
		a, b *stackVersion
		want bool
	}{
		{"lower cost wins", testVersion(2, 1, 0, -5), testVersion(1, 1, 10, 5), true},
		{"higher cost loses", testVersion(1, 1, 10, 5), testVersion(2, 1, 0, -5), false},
		{"higher dynamic precedence wins on equal cost", testVersion(2, 1, 3, 2), testVersion(1, 1, 3, 1), true},
		{"older version wins a full tie", testVersion(1, 1, 3, 1), testVersion(2, 1, 3, 1), true},
		{"newer version loses a full tie", testVersion(2, 1, 3, 1), testVersion(1, 1, 3, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, betterVersion(tt.a, tt.b))
		})
	}
}

func TestBetterVersionChargesPausedVersions(t *testing.T) {
	paused := testVersion(1, 1, 0, 0)
	paused.status = versionPaused
	active := testVersion(2, 1, ErrorCostPerRecovery-1, 0)
	assert.True(t, betterVersion(active, paused))
}

func TestCondenseMergesSameState(t *testing.T) {
	p := NewParser()
	low := testVersion(3, 7, 0, 0)
	high := testVersion(1, 7, 0, 2)
	other := testVersion(2, 9, 5, 0)
	halted := testVersion(4, 7, 0, 9)
	halted.status = versionHalted

	out := p.condense([]*stackVersion{low, high, other, halted})
	require.Len(t, out, 2)
	assert.Same(t, high, out[0])
	assert.Same(t, other, out[1])
}

func TestCondenseDropsExpensiveVersions(t *testing.T) {
	p := NewParser()
	best := testVersion(1, 1, 0, 0)
	far := testVersion(2, 2, maxCostDifference+1, 0)

	out := p.condense([]*stackVersion{far, best})
	require.Len(t, out, 1)
	assert.Same(t, best, out[0])
}
