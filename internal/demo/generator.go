package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/config"
)

// DefaultInterval is used when no positive interval is configured.
const DefaultInterval = time.Second

// sysEvery is how often (in messages) a $SYS counter is emitted.
const sysEvery = 20

var (
	rooms   = []string{"living", "kitchen", "bedroom", "garage"}
	devices = []string{"door-front", "window-kitchen", "pump-01", "gate"}
	meters  = []string{"main", "solar"}
)

// Emitter receives each generated message.
type Emitter func(topic string, payload []byte)

// Generator produces simulated messages. It is safe for concurrent use.
type Generator struct {
	interval time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	count uint64
}

// New creates a generator. A zero seed picks a time-based one.
func New(interval time.Duration, seed int64) *Generator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := uint64(seed) // #nosec G115 -- bit pattern only
	if seed == 0 {
		s = uint64(time.Now().UnixNano()) // #nosec G115 -- bit pattern only
	}
	return &Generator{
		interval: interval,
		rng:      rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15)),
	}
}

// FromConfig creates a generator from the demo config section.
func FromConfig(cfg config.DemoConfig) *Generator {
	return New(time.Duration(cfg.Interval)*time.Millisecond, cfg.Seed)
}

// Interval returns the delay between messages.
func (g *Generator) Interval() time.Duration {
	return g.interval
}

// Next returns the next simulated message.
func (g *Generator) Next() (string, []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.count++
	if g.count%sysEvery == 0 {
		return "$SYS/broker/clients/connected", []byte(fmt.Sprint(1 + g.rng.IntN(5)))
	}

	switch roll := g.rng.IntN(100); {
	case roll < 55:
		return g.climate()
	case roll < 70:
		return g.status()
	case roll < 90:
		return g.energy()
	default:
		return g.alert()
	}
}

// Run emits one message immediately and then one per interval until ctx
// is cancelled.
func (g *Generator) Run(ctx context.Context, emit Emitter) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	emit(g.Next())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emit(g.Next())
		}
	}
}

func (g *Generator) climate() (string, []byte) {
	room := pick(g.rng, rooms)
	return "sensors/" + room + "/climate", mustJSON(map[string]any{
		"temp":     round1(15 + g.rng.Float64()*20),
		"humidity": 30 + g.rng.IntN(50),
		"unit":     "C",
		"room":     room,
	})
}

func (g *Generator) status() (string, []byte) {
	state := "online"
	if g.rng.IntN(4) == 0 {
		state = "offline"
	}
	return "devices/" + pick(g.rng, devices) + "/status", []byte(state)
}

func (g *Generator) energy() (string, []byte) {
	return "energy/meter/" + pick(g.rng, meters), mustJSON(map[string]any{
		"power_w": g.rng.IntN(4000),
		"voltage": round1(225 + g.rng.Float64()*10),
	})
}

func (g *Generator) alert() (string, []byte) {
	level := "warning"
	if g.rng.IntN(3) == 0 {
		level = "critical"
	}
	room := pick(g.rng, rooms)
	return "alerts/" + room, mustJSON(map[string]any{
		"level":   level,
		"message": fmt.Sprintf("%s threshold exceeded in %s", level, room),
	})
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.IntN(len(options))]
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

func mustJSON(v map[string]any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("demo: encoding payload: %v", err))
	}
	return data
}
