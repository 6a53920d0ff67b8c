package acds

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// wordlist supplies the three components of a generated session
// string, e.g. "swift-river-mountain". Kept short and pronounceable
// for memorable session strings; a 32-word
// list per slot gives 32^3 = 32768 combinations, collisions are
// resolved by Registry.generateUniqueStringLocked's retry loop.
var wordlistAdjectives = []string{
	"swift", "quiet", "bold", "calm", "brave", "eager", "gentle", "vivid",
	"amber", "azure", "coral", "dusty", "faint", "grim", "hazy", "ivory",
	"jolly", "keen", "lively", "misty", "noble", "olive", "plain", "quick",
	"rapid", "solid", "tidy", "urban", "vocal", "witty", "young", "zesty",
}

var wordlistNouns = []string{
	"river", "mountain", "forest", "meadow", "harbor", "canyon", "valley", "island",
	"desert", "glacier", "plateau", "lagoon", "summit", "orchard", "prairie", "reef",
	"falcon", "otter", "heron", "lynx", "badger", "sparrow", "marten", "osprey",
	"ember", "quartz", "cobalt", "cedar", "willow", "maple", "birch", "aspen",
}

var wordlistSuffixes = []string{
	"run", "peak", "bend", "ridge", "cove", "glen", "ford", "reach",
	"hollow", "crest", "shoal", "bluff", "vale", "fen", "tor", "mere",
	"brook", "knoll", "moor", "glade", "den", "pass", "spur", "ledge",
	"wick", "holt", "croft", "stead", "thorpe", "minster", "burn", "heath",
}

func randomWord(list []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
	if err != nil {
		return "", err
	}
	return list[n.Int64()], nil
}

// randomSessionString builds one "adjective-noun-suffix" candidate.
func randomSessionString() (string, error) {
	a, err := randomWord(wordlistAdjectives)
	if err != nil {
		return "", err
	}
	n, err := randomWord(wordlistNouns)
	if err != nil {
		return "", err
	}
	s, err := randomWord(wordlistSuffixes)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", a, n, s), nil
}
