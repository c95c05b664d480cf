package brackets

import (
	"errors"
	"math/rand/v2"
)

// ErrMapPoolExhausted means no maps exist in any eligible mode, which
// is fatal to the generation call that hit it.
var ErrMapPoolExhausted = errors.New("map pool exhausted: no maps available in any eligible mode")

// ModePool is the selectable maps of one eligible mode.
type ModePool struct {
	ModeID int
	MapIDs []int
}

// SelectMaps picks one map per round for a single match. Modes are
// shuffled once, then each round takes a random unused map from the
// first mode that still has one. When every mode is drained it falls
// back to any globally unused map, and past that reuses a random map:
// duplication is the documented fallback for a too-small pool, not an
// error. Only a completely empty pool fails.
func SelectMaps(pools []ModePool, rounds int, rng *rand.Rand) ([]int, error) {
	all := make([]int, 0)
	for _, pool := range pools {
		all = append(all, pool.MapIDs...)
	}
	if len(all) == 0 {
		return nil, ErrMapPoolExhausted
	}

	shuffled := make([]ModePool, len(pools))
	copy(shuffled, pools)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	used := make(map[int]bool, rounds)
	selected := make([]int, 0, rounds)

	for round := 0; round < rounds; round++ {
		mapID, ok := pickFromModes(shuffled, used, rng)
		if !ok {
			mapID, ok = pickUnused(all, used, rng)
		}
		if !ok {
			// Pool smaller than the match: reuse.
			mapID = all[rng.IntN(len(all))]
		}
		used[mapID] = true
		selected = append(selected, mapID)
	}
	return selected, nil
}

func pickFromModes(pools []ModePool, used map[int]bool, rng *rand.Rand) (int, bool) {
	for _, pool := range pools {
		if mapID, ok := pickUnused(pool.MapIDs, used, rng); ok {
			return mapID, true
		}
	}
	return 0, false
}

func pickUnused(mapIDs []int, used map[int]bool, rng *rand.Rand) (int, bool) {
	unused := make([]int, 0, len(mapIDs))
	for _, id := range mapIDs {
		if !used[id] {
			unused = append(unused, id)
		}
	}
	if len(unused) == 0 {
		return 0, false
	}
	return unused[rng.IntN(len(unused))], true
}
