package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
)

func TestParseSide(t *testing.T) {
	tests := []struct {
		raw  string
		want Side
	}{
		{"", SideNone},
		{"none", SideNone},
		{"left", SideLeft},
		{"right", SideRight},
	}
	for _, tt := range tests {
		got, err := ParseSide(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}

	for _, raw := range []string{"both", "LEFT", "non_applicable"} {
		_, err := ParseSide(raw)
		assert.True(t, shared.IsInvalidArgument(err), raw)
	}
}

func TestFigureRequiredSteps(t *testing.T) {
	f := Figure{Steps: []Step{
		{ID: 1, Required: true},
		{ID: 2},
		{ID: 3, Required: true},
	}}

	got := f.RequiredSteps()
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}
