package utils

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var mu sync.Mutex
var seededRand *rand.Rand

func init() {
	seededRand = rand.New(rand.NewSource(time.Now().UnixNano()))
}

// GenerateReference returns a new human-readable investment reference of the
// form INV-<digits>. References are unique in practice (nanosecond clock plus
// random suffix) and backed by a unique index on the column; they are never
// reused even after an investment is deleted.
func GenerateReference() string {
	mu.Lock()
	defer mu.Unlock()

	nanoPart := time.Now().UnixNano() % 100000000
	randPart := seededRand.Intn(9000) + 1000

	return fmt.Sprintf("INV-%08d%04d", nanoPart, randPart)
}
