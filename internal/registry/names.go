package registry

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "purple", "blue", "red", "green", "bright", "gentle",
	"brave", "calm", "swift", "silent", "noisy", "bouncy", "fuzzy", "plucky", "merry", "peppy",
}

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"chick", "duckling", "fawn", "foal", "lamb", "calf", "porcupine", "raccoon", "skunk", "mole",
	"mouse", "rat", "ferret", "weasel", "beaver", "seahorse", "starfish", "dolphin", "whale", "narwhal",
	"penguin", "flamingo", "pelican", "swallow", "sparrow", "robin", "toucan", "parrot", "canary", "cockatoo",
}

// GenerateDisplayName builds a random, memorable display name like
// "sleepy-otter-41" for participants that never supplied one. The result
// always satisfies display name validation (3-50 chars).
func GenerateDisplayName() string {
	adjective := adjectives[randomIndex(len(adjectives))]
	animal := animals[randomIndex(len(animals))]
	return fmt.Sprintf("%s-%s-%d", adjective, animal, 10+randomIndex(90))
}

// randomIndex returns a random index in [0, max) from crypto/rand, falling
// back to 0 if the source fails.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}
