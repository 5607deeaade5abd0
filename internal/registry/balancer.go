package registry

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// Balancing strategies.
const (
	StrategyRoundRobin       = "round_robin"
	StrategyRandom           = "random"
	StrategyHealthWeighted   = "health_weighted"
	StrategyLeastConnections = "least_connections"
)

// Balancer picks one instance from a healthy set. Round-robin state and
// connection counts are tracked per service name.
type Balancer struct {
	strategy string

	mu       sync.Mutex
	counters map[string]int
	conns    map[string]int
}

func NewBalancer(strategy string) (*Balancer, error) {
	switch strategy {
	case StrategyRoundRobin, StrategyRandom, StrategyHealthWeighted, StrategyLeastConnections:
	default:
		return nil, fmt.Errorf("unknown balancing strategy %q", strategy)
	}
	return &Balancer{
		strategy: strategy,
		counters: make(map[string]int),
		conns:    make(map[string]int),
	}, nil
}

// Pick selects one instance. Instances are sorted by ID first so
// round-robin cycles in a stable order regardless of lookup ordering.
func (b *Balancer) Pick(serviceName string, instances []Instance) (Instance, error) {
	if len(instances) == 0 {
		return Instance{}, fmt.Errorf("no instances available for %s", serviceName)
	}

	sorted := make([]Instance, len(instances))
	copy(sorted, instances)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.strategy {
	case StrategyRandom:
		return sorted[rand.Intn(len(sorted))], nil

	case StrategyHealthWeighted:
		total := 0
		for _, inst := range sorted {
			if inst.Weight > 0 {
				total += inst.Weight
			}
		}
		if total == 0 {
			return sorted[rand.Intn(len(sorted))], nil
		}
		n := rand.Intn(total)
		for _, inst := range sorted {
			if inst.Weight <= 0 {
				continue
			}
			n -= inst.Weight
			if n < 0 {
				return inst, nil
			}
		}
		return sorted[len(sorted)-1], nil

	case StrategyLeastConnections:
		best := sorted[0]
		bestConns := b.conns[best.ID]
		for _, inst := range sorted[1:] {
			if c := b.conns[inst.ID]; c < bestConns {
				best = inst
				bestConns = c
			}
		}
		return best, nil

	default: // round_robin
		i := b.counters[serviceName] % len(sorted)
		b.counters[serviceName]++
		return sorted[i], nil
	}
}

// Acquire records an in-flight request against the instance; pair with
// Release. Only least_connections reads these counts.
func (b *Balancer) Acquire(inst Instance) {
	b.mu.Lock()
	b.conns[inst.ID]++
	b.mu.Unlock()
}

func (b *Balancer) Release(inst Instance) {
	b.mu.Lock()
	if b.conns[inst.ID] > 0 {
		b.conns[inst.ID]--
	}
	b.mu.Unlock()
}
