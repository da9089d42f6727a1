package engine

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Die is a single rolled die inside a RollRecord's rollData.
type Die struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

// DiceStats aggregates a session's full durable dice log.
type DiceStats struct {
	TotalRolls   int                `json:"totalRolls"`
	Players      map[string]int     `json:"players"`
	DiceTypes    map[string]int     `json:"diceTypes"`
	AverageRolls map[string]float64 `json:"averageRolls"`
}

// DiceOf extracts the dice descriptors from raw rollData. Entries without a
// type or a numeric value are skipped; stored records were validated on the
// way in, so this only matters for legacy rows.
func DiceOf(rollData json.RawMessage) []Die {
	dice := gjson.GetBytes(rollData, "dice")
	if !dice.IsArray() {
		return nil
	}
	out := []Die{}
	dice.ForEach(func(_, d gjson.Result) bool {
		t := d.Get("type")
		v := d.Get("value")
		if t.Type != gjson.String || t.Str == "" || v.Type != gjson.Number {
			return true
		}
		out = append(out, Die{Type: t.Str, Value: int(v.Int())})
		return true
	})
	return out
}

func RollTotal(dice []Die) int {
	total := 0
	for _, d := range dice {
		total += d.Value
	}
	return total
}

func ComputeStats(history []RollRecord) DiceStats {
	stats := DiceStats{
		TotalRolls:   len(history),
		Players:      map[string]int{},
		DiceTypes:    map[string]int{},
		AverageRolls: map[string]float64{},
	}

	sums := map[string]int{}
	for _, roll := range history {
		stats.Players[roll.PlayerName]++
		for _, d := range DiceOf(roll.RollData) {
			stats.DiceTypes[d.Type]++
			sums[d.Type] += d.Value
		}
	}
	for t, sum := range sums {
		stats.AverageRolls[t] = float64(sum) / float64(stats.DiceTypes[t])
	}
	return stats
}
