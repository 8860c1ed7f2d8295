package game

import "math/rand"

// Shuffle permutes songs in place with Fisher-Yates, swapping from the high
// index down with j drawn uniformly from [0, i].
func Shuffle(songs []Song, rng *rand.Rand) {
	for i := len(songs) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		songs[i], songs[j] = songs[j], songs[i]
	}
}

// PlanRounds draws the fixed round plan: a uniform permutation of the pool
// truncated to rounds. The plan never changes after game start.
func PlanRounds(pool []Song, rounds int, rng *rand.Rand) []Song {
	plan := append([]Song(nil), pool...)
	Shuffle(plan, rng)
	if rounds < len(plan) {
		plan = plan[:rounds]
	}
	return plan
}
