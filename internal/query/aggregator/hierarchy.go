package aggregator

import (
	"fmt"
	"strings"

	"github.com/arkilian/drilldown/pkg/types"
)

// Level is a tier of the ad hierarchy. Levels are totally ordered from the
// root (account) to the leaf (ad).
type Level int

const (
	LevelAccount Level = iota
	LevelCampaign
	LevelAdSet
	LevelAd
)

// levelCount is the number of hierarchy levels.
const levelCount = int(LevelAd) + 1

type levelDef struct {
	name    string
	idField string
	// groupBy is the key tuple; the first field is always idField
	groupBy []string
	display func(keys []string) string
}

var levels = [levelCount]levelDef{
	LevelAccount: {
		name:    "account",
		idField: types.FieldAdvertiserID,
		groupBy: []string{types.FieldAdvertiserID},
		display: func(k []string) string { return "Account " + k[0] },
	},
	LevelCampaign: {
		name:    "campaign",
		idField: types.FieldCampaignID,
		groupBy: []string{types.FieldCampaignID, types.FieldCampaignType, types.FieldAdvertiserID},
		display: func(k []string) string { return fmt.Sprintf("Campaign %s (%s)", k[0], k[1]) },
	},
	LevelAdSet: {
		name:    "ad_set",
		idField: types.FieldAdSetID,
		groupBy: []string{types.FieldAdSetID, types.FieldCampaignID},
		display: func(k []string) string { return "Ad Set " + k[0] },
	},
	LevelAd: {
		name:    "ad",
		idField: types.FieldAdID,
		groupBy: []string{types.FieldAdID, types.FieldAdSetID, types.FieldCampaignID},
		display: func(k []string) string { return "Ad " + k[0] },
	},
}

// Levels returns every level from root to leaf.
func Levels() []Level {
	return []Level{LevelAccount, LevelCampaign, LevelAdSet, LevelAd}
}

// ParseLevel resolves a level by name ("account", "campaign", "ad_set", "ad").
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, def := range levels {
		if def.name == name {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("aggregator: unknown hierarchy level %q", s)
}

// Valid reports whether l names a known level.
func (l Level) Valid() bool {
	return l >= LevelAccount && l <= LevelAd
}

func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levels[l].name
}

// IDField is the fact field identifying a node at this level.
func (l Level) IDField() string {
	return levels[l].idField
}

// GroupBy returns a copy of the level's group-by key fields.
func (l Level) GroupBy() []string {
	return append([]string(nil), levels[l].groupBy...)
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("aggregator: invalid level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
