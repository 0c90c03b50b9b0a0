package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// Seed a PRNG from crypto/rand so run ids are unpredictable.
	// ulid.Monotonic keeps ids generated within the same millisecond
	// lexicographically increasing.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string stamped with the wall clock. Used for run ids.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// Generator produces ULIDs stamped with simulated time instead of the wall
// clock. Two generators built from the same seed and fed the same sequence
// of times return the same ids, which keeps backtest output reproducible.
//
// A Generator is not safe for concurrent use; each run owns its own.
type Generator struct {
	entropy *ulid.MonotonicEntropy
	last    uint64
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

// Next returns an id for an event at t. Times that go backwards are clamped
// to the last seen millisecond so ids stay sorted.
func (g *Generator) Next(t time.Time) string {
	ms := ulid.Timestamp(t.UTC())
	if ms < g.last {
		ms = g.last
	}
	g.last = ms

	id, err := ulid.New(ms, g.entropy)
	if err != nil {
		panic(err)
	}
	return id.String()
}
