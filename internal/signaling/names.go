package signaling

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

var animalNames = []string{
	"albatross", "badger", "caribou", "dingo", "echidna", "falcon",
	"gibbon", "heron", "ibex", "jackal", "kestrel", "lemur",
	"marmot", "narwhal", "ocelot", "pelican", "quokka", "raccoon",
	"seagull", "tapir", "urchin", "viper", "wombat", "yak",
}

// newClientID produces a human-readable ID like "wombat-9f3c". The hex
// suffix keeps collisions rare; registration retries on the ones that
// still happen.
func newClientID() string {
	u := uuid.New()
	return fmt.Sprintf("%s-%x", animalNames[randomIndex(len(animalNames))], u[:2])
}

func randomIndex(n int) int {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(i.Int64())
}
