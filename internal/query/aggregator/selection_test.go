package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelection_SelectClearsDeeperLevels(t *testing.T) {
	sel := NewSelection()
	sel.Select(LevelAccount, "A1")
	sel.Select(LevelCampaign, "C1", "C2")
	sel.Select(LevelAdSet, "S1")
	sel.Select(LevelAd, "AD1")

	sel.Select(LevelCampaign, "C3")
	assert.Equal(t, []string{"A1"}, sel.Selected(LevelAccount))
	assert.Equal(t, []string{"C3"}, sel.Selected(LevelCampaign))
	assert.Empty(t, sel.Selected(LevelAdSet))
	assert.Empty(t, sel.Selected(LevelAd))
}

func TestSelection_ClearClearsDeeperLevels(t *testing.T) {
	sel := NewSelection()
	sel.Select(LevelAccount, "A1")
	sel.Select(LevelCampaign, "C1")
	sel.Select(LevelAdSet, "S1")

	sel.Clear(LevelCampaign)
	assert.Equal(t, []string{"A1"}, sel.Selected(LevelAccount))
	assert.Empty(t, sel.Selected(LevelCampaign))
	assert.Empty(t, sel.Selected(LevelAdSet))

	sel.Reset()
	assert.Empty(t, sel.Selected(LevelAccount))
}

func TestSelection_Toggle(t *testing.T) {
	sel := NewSelection()
	sel.Toggle(LevelCampaign, "C1")
	sel.Toggle(LevelCampaign, "C2")
	sel.Select(LevelAdSet, "S1")
	assert.Equal(t, []string{"C1", "C2"}, sel.Selected(LevelCampaign))

	sel.Toggle(LevelCampaign, "C1")
	assert.Equal(t, []string{"C2"}, sel.Selected(LevelCampaign))
	assert.Empty(t, sel.Selected(LevelAdSet), "toggle must clear deeper levels")

	sel.Toggle(LevelCampaign, "C2")
	assert.Empty(t, sel.Selected(LevelCampaign))
	assert.False(t, sel.Contains(LevelCampaign, "C2"))
}

func TestSelection_DeduplicatesAndIgnoresInvalidLevels(t *testing.T) {
	sel := NewSelection()
	sel.Select(LevelAccount, "A1", "A2", "A1")
	assert.Equal(t, []string{"A1", "A2"}, sel.Selected(LevelAccount))

	sel.Select(Level(-1), "x")
	sel.Toggle(Level(7), "x")
	sel.Clear(Level(7))
	assert.Nil(t, sel.Selected(Level(7)))
	assert.Equal(t, []string{"A1", "A2"}, sel.Selected(LevelAccount))
}

func TestSelection_SnapshotIsIndependent(t *testing.T) {
	sel := NewSelection()
	sel.Select(LevelAccount, "A1")
	snap := sel.Snapshot()

	sel.Select(LevelAccount, "A2")
	assert.Equal(t, []string{"A1"}, snap.Selected(LevelAccount))

	got := snap.Selected(LevelAccount)
	got[0] = "mutated"
	assert.Equal(t, []string{"A1"}, snap.Selected(LevelAccount))

	var nilSel *Selection
	assert.NotNil(t, nilSel.Snapshot())
	assert.Nil(t, nilSel.Selected(LevelAccount))
}

func TestSelection_MapRoundTrip(t *testing.T) {
	sel, err := SelectionFromMap(map[string][]string{
		"account":  {"A1"},
		"campaign": {"C1", "C2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C2"}, sel.Selected(LevelCampaign))
	assert.Equal(t, map[string][]string{"account": {"A1"}, "campaign": {"C1", "C2"}}, sel.ToMap())

	_, err = SelectionFromMap(map[string][]string{"region": {"x"}})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for _, l := range Levels() {
		parsed, err := ParseLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
	}
	l, err := ParseLevel(" Ad_Set ")
	require.NoError(t, err)
	assert.Equal(t, LevelAdSet, l)

	_, err = ParseLevel("keyword")
	assert.Error(t, err)

	var decoded Level
	require.NoError(t, decoded.UnmarshalText([]byte("campaign")))
	assert.Equal(t, LevelCampaign, decoded)
	text, err := LevelAd.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "ad", string(text))
	assert.Equal(t, "Level(9)", Level(9).String())
}
