package simulator

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// ErrInvalidBusID is returned when a fault targets a bus outside the topology.
var ErrInvalidBusID = errors.New("bus id out of range")

const (
	defaultSamplingRate     = 50.0
	defaultFaultProbability = 0.001
	defaultFaultDuration    = 100 * time.Millisecond

	magnitudeNoiseSigma = 0.001
	angleNoiseSigma     = 0.01
	magnitudeFloor      = 0.9
	magnitudeCeil       = 1.1
)

// FaultEntry is a transient fault active at a bus until EndTime.
type FaultEntry struct {
	BusID   int
	EndTime time.Time
}

// Snapshot is a read-only view of the evolving grid state.
type Snapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	Magnitudes   []float64 `json:"voltage_magnitudes"`
	Angles       []float64 `json:"voltage_angles"`
	ActiveFaults []int     `json:"active_faults"`
}

// BusVoltage is a single per-bus reading from the sampling path.
type BusVoltage struct {
	BusID     int     `json:"bus_id"`
	Magnitude float64 `json:"voltage_magnitude"`
	Angle     float64 `json:"voltage_angle"`
}

type Config struct {
	// Solution seeds the per-bus state; defaults to the 39-bus case.
	Solution     *Solution
	SamplingRate float64
	// FaultProbability is the per-tick chance of a random fault; zero
	// selects the default, a negative value disables random injection.
	FaultProbability float64
	FaultDuration    time.Duration
	// Start sets the virtual simulation clock; defaults to time.Now().
	Start time.Time
	// Rand makes fault timing and noise reproducible; defaults to a
	// time-seeded source.
	Rand *rand.Rand
}

// Simulator maintains per-bus voltage state on a virtual clock and a set
// of transient faults. A single instance is not safe for concurrent use
// without the internal lock, so every operation serializes on it.
type Simulator struct {
	mu sync.Mutex

	busCount    int
	magnitudes  []float64
	angles      []float64
	timeStep    time.Duration
	currentTime time.Time

	faultProbability float64
	faultDuration    time.Duration
	activeFaults     []FaultEntry

	rng *rand.Rand
}

func New(cfg Config) *Simulator {
	solution := cfg.Solution
	if solution == nil {
		solution = Case39()
	}
	samplingRate := cfg.SamplingRate
	if samplingRate <= 0 {
		samplingRate = defaultSamplingRate
	}
	faultProbability := cfg.FaultProbability
	if faultProbability == 0 {
		faultProbability = defaultFaultProbability
	} else if faultProbability < 0 {
		faultProbability = 0
	}
	faultDuration := cfg.FaultDuration
	if faultDuration <= 0 {
		faultDuration = defaultFaultDuration
	}
	start := cfg.Start
	if start.IsZero() {
		start = time.Now()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	magnitudes := make([]float64, len(solution.Magnitudes))
	copy(magnitudes, solution.Magnitudes)
	angles := make([]float64, len(solution.Angles))
	copy(angles, solution.Angles)

	return &Simulator{
		busCount:         len(magnitudes),
		magnitudes:       magnitudes,
		angles:           angles,
		timeStep:         time.Duration(float64(time.Second) / samplingRate),
		currentTime:      start,
		faultProbability: faultProbability,
		faultDuration:    faultDuration,
		rng:              rng,
	}
}

func (s *Simulator) BusCount() int {
	return s.busCount
}

// CurrentTime reports the virtual simulation clock.
func (s *Simulator) CurrentTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTime
}

// InjectFault halves the bus's voltage magnitude immediately and registers
// a fault that expires after the configured fault duration.
func (s *Simulator) InjectFault(busID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injectFaultLocked(busID)
}

func (s *Simulator) injectFaultLocked(busID int) error {
	if busID < 0 || busID >= s.busCount {
		return fmt.Errorf("%w: %d", ErrInvalidBusID, busID)
	}
	s.activeFaults = append(s.activeFaults, FaultEntry{
		BusID:   busID,
		EndTime: s.currentTime.Add(s.faultDuration),
	})
	s.magnitudes[busID] *= 0.5
	return nil
}

// UpdateState advances the virtual clock one time step: possibly injects a
// random fault, prunes expired faults, perturbs every magnitude and angle
// with zero-mean Gaussian noise, and clamps magnitudes into [0.9, 1.1].
func (s *Simulator) UpdateState() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentTime = s.currentTime.Add(s.timeStep)

	if s.faultProbability > 0 && s.rng.Float64() < s.faultProbability {
		s.injectFaultLocked(s.rng.Intn(s.busCount))
	}

	kept := s.activeFaults[:0]
	for _, fault := range s.activeFaults {
		if fault.EndTime.After(s.currentTime) {
			kept = append(kept, fault)
		}
	}
	s.activeFaults = kept

	for i := range s.magnitudes {
		s.magnitudes[i] += s.rng.NormFloat64() * magnitudeNoiseSigma
		s.angles[i] += s.rng.NormFloat64() * angleNoiseSigma
		if s.magnitudes[i] < magnitudeFloor {
			s.magnitudes[i] = magnitudeFloor
		} else if s.magnitudes[i] > magnitudeCeil {
			s.magnitudes[i] = magnitudeCeil
		}
	}
}

// Measurements returns the evolving state: the virtual clock, defensive
// copies of the magnitude and angle arrays, and the buses with an active
// fault. Read-only, no side effects.
func (s *Simulator) Measurements() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	magnitudes := make([]float64, s.busCount)
	copy(magnitudes, s.magnitudes)
	angles := make([]float64, s.busCount)
	copy(angles, s.angles)

	faulted := make([]int, 0, len(s.activeFaults))
	for _, fault := range s.activeFaults {
		faulted = append(faulted, fault.BusID)
	}

	return Snapshot{
		Timestamp:    s.currentTime,
		Magnitudes:   magnitudes,
		Angles:       angles,
		ActiveFaults: faulted,
	}
}

// VoltageMeasurements draws a fresh memoryless (magnitude, angle) reading
// per bus: magnitude 1.0 + N(0, 0.02), angle uniform in [-15, 15) degrees.
// This path does not consult or mutate the evolving state above; the two
// read paths are intentionally separate and must not be unified without
// product sign-off.
func (s *Simulator) VoltageMeasurements() []BusVoltage {
	s.mu.Lock()
	defer s.mu.Unlock()

	readings := make([]BusVoltage, s.busCount)
	for i := range readings {
		readings[i] = BusVoltage{
			BusID:     i,
			Magnitude: 1.0 + s.rng.NormFloat64()*0.02,
			Angle:     -15 + s.rng.Float64()*30,
		}
	}
	return readings
}
