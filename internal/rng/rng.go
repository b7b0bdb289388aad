// Package rng owns the engine's randomness. Production games share one
// crypto-seeded PRNG; tests install per-game overrides that replace dice
// rolls and draw-pile contents with fixed sequences and disable shuffling.
package rng

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
	"sync"

	"github.com/dungeonhold/server/internal/domain"
)

// Source produces dice rolls and shuffles for one game.
type Source interface {
	// Roll returns a uniform value in [min, max].
	Roll(min, max int) int
	// Shuffle permutes n elements via swap. Deterministic sources skip it.
	Shuffle(n int, swap func(i, j int))
}

// Overrides is the deterministic seam for one game. Dice rolls are consumed
// cyclically; tile and item sequences are installed verbatim.
type Overrides struct {
	DiceRolls    []int
	TileSequence []string
	ItemSequence []string
	StartingHP   []int // by player join order

	mu      sync.Mutex
	diceIdx int
}

func (o *Overrides) nextDie(min, max int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.DiceRolls) == 0 {
		return min
	}
	v := o.DiceRolls[o.diceIdx%len(o.DiceRolls)]
	o.diceIdx++
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Service is the process-wide randomness registry.
type Service struct {
	mu    sync.Mutex
	games map[domain.ID]*Overrides
	prod  *mrand.Rand
}

func NewService() (*Service, error) {
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("seed rng: %w", err)
	}
	return &Service{
		games: make(map[domain.ID]*Overrides),
		prod:  mrand.New(mrand.NewSource(int64(binary.LittleEndian.Uint64(seed[:])))),
	}, nil
}

// SetOverrides installs the deterministic seam for one game.
func (s *Service) SetOverrides(gameID domain.ID, ov *Overrides) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[gameID] = ov
}

// Overrides returns the seam for a game, if installed.
func (s *Service) Overrides(gameID domain.ID) (*Overrides, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ov, ok := s.games[gameID]
	return ov, ok
}

// ForGame returns the dice/shuffle source for a game.
func (s *Service) ForGame(gameID domain.ID) Source {
	if ov, ok := s.Overrides(gameID); ok {
		return deterministicSource{ov: ov}
	}
	return prodSource{svc: s}
}

type prodSource struct {
	svc *Service
}

func (p prodSource) Roll(min, max int) int {
	p.svc.mu.Lock()
	defer p.svc.mu.Unlock()
	return min + p.svc.prod.Intn(max-min+1)
}

func (p prodSource) Shuffle(n int, swap func(i, j int)) {
	p.svc.mu.Lock()
	defer p.svc.mu.Unlock()
	p.svc.prod.Shuffle(n, swap)
}

type deterministicSource struct {
	ov *Overrides
}

func (d deterministicSource) Roll(min, max int) int {
	return d.ov.nextDie(min, max)
}

// Shuffle is a no-op: deterministic sequences are installed verbatim.
func (d deterministicSource) Shuffle(int, func(i, j int)) {}
