package robot

import (
	"errors"
	"sync"
)

// ErrSimFault is returned by simulated devices configured to fail.
var ErrSimFault = errors.New("robot: simulated device fault")

// SimMotors records motor commands.
type SimMotors struct {
	mu     sync.Mutex
	m1, m2 int
	writes int
}

func (m *SimMotors) SetM1Speed(speed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m1 = speed
	m.writes++
	return nil
}

func (m *SimMotors) SetM2Speed(speed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m2 = speed
	m.writes++
	return nil
}

// Speeds returns the last M1 and M2 commands.
func (m *SimMotors) Speeds() (m1, m2 int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m1, m.m2
}

// Writes returns the number of speed commands received.
func (m *SimMotors) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// SimEncoder is a settable counter.
type SimEncoder struct {
	mu     sync.Mutex
	count  int64
	writes int
}

func (e *SimEncoder) Read() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func (e *SimEncoder) Write(count int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count = count
	e.writes++
}

// Advance moves the counter by delta without counting as a write.
func (e *SimEncoder) Advance(delta int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count += delta
}

// Writes returns how many times Write was called.
func (e *SimEncoder) Writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writes
}

// SimServo records the head actuator.
type SimServo struct {
	mu        sync.Mutex
	attached  bool
	pulse     int
	positions []int
	attaches  int
	detaches  int
}

func (s *SimServo) Attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = true
	s.attaches++
	return nil
}

func (s *SimServo) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	s.detaches++
	return nil
}

func (s *SimServo) WriteMicroseconds(us int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulse = us
	s.positions = append(s.positions, us)
	return nil
}

// Attached reports whether the servo is attached.
func (s *SimServo) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// Positions returns every pulse width written so far.
func (s *SimServo) Positions() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.positions...)
}

// Counts returns how many times Attach and Detach were called.
func (s *SimServo) Counts() (attaches, detaches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attaches, s.detaches
}

// SimAnalog replays a sequence of readings. Once the queue is empty the
// last value repeats.
type SimAnalog struct {
	mu    sync.Mutex
	queue []int
	value int
	reads int
	Fail  bool
}

// NewSimAnalog returns an input that reads value.
func NewSimAnalog(value int) *SimAnalog {
	return &SimAnalog{value: value}
}

func (a *SimAnalog) Read() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reads++
	if a.Fail {
		return 0, ErrSimFault
	}
	if len(a.queue) > 0 {
		a.value = a.queue[0]
		a.queue = a.queue[1:]
	}
	return a.value, nil
}

// Set replaces the current value and clears any queued readings.
func (a *SimAnalog) Set(value int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = nil
	a.value = value
}

// Queue appends readings to be returned one per Read.
func (a *SimAnalog) Queue(values ...int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = append(a.queue, values...)
}

// Reads returns the number of Read calls.
func (a *SimAnalog) Reads() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reads
}

// SimRange is a multiplexed pair of range sensors. It implements both
// ChannelMux and RangeSensor; reads return the distance of the selected channel.
type SimRange struct {
	mu        sync.Mutex
	selected  uint8
	distances map[uint8][]uint16
	last      map[uint8]uint16
	selects   []uint8
	flushes   int
}

// NewSimRange returns sensors reading front and back.
func NewSimRange(front, back uint16) *SimRange {
	return &SimRange{
		distances: map[uint8][]uint16{},
		last:      map[uint8]uint16{FrontChannel: front, BackChannel: back},
	}
}

func (r *SimRange) SelectChannel(ch uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = ch
	r.selects = append(r.selects, ch)
	return nil
}

func (r *SimRange) ReadDistance() (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q := r.distances[r.selected]; len(q) > 0 {
		r.last[r.selected] = q[0]
		r.distances[r.selected] = q[1:]
	}
	return r.last[r.selected], nil
}

func (r *SimRange) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	r.selects = append(r.selects, 0xff)
	return nil
}

// Set fixes the distance of a channel.
func (r *SimRange) Set(ch uint8, mm uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.distances[ch] = nil
	r.last[ch] = mm
}

// Queue appends readings for a channel.
func (r *SimRange) Queue(ch uint8, mm ...uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.distances[ch] = append(r.distances[ch], mm...)
}

// Trace returns the channel selections in order; 0xff marks a bus flush.
func (r *SimRange) Trace() []uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint8(nil), r.selects...)
}

// SimGauge is a fuel gauge with fixed readings.
type SimGauge struct {
	mu      sync.Mutex
	voltage float64
	percent float64
}

// NewSimGauge returns a gauge reading voltage and percent.
func NewSimGauge(voltage, percent float64) *SimGauge {
	return &SimGauge{voltage: voltage, percent: percent}
}

func (g *SimGauge) CellVoltage() (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.voltage, nil
}

func (g *SimGauge) CellPercent() (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.percent, nil
}

// Set changes the readings.
func (g *SimGauge) Set(voltage, percent float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.voltage, g.percent = voltage, percent
}

// SimLight records the status light.
type SimLight struct {
	mu         sync.Mutex
	brightness uint8
	mode       LightMode
}

func (l *SimLight) SetBrightness(level uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.brightness = level
	return nil
}

func (l *SimLight) SetMode(mode LightMode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = mode
	return nil
}

// Brightness returns the last brightness.
func (l *SimLight) Brightness() uint8 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.brightness
}

// Mode returns the last mode.
func (l *SimLight) Mode() LightMode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// Sim is a complete simulated robot.
type Sim struct {
	Motors    *SimMotors
	Right     *SimEncoder
	Left      *SimEncoder
	Head      *SimServo
	IRLeft    *SimAnalog
	IRRight   *SimAnalog
	Light     *SimAnalog
	USBDetect *SimAnalog
	Range     *SimRange
	Gauge     *SimGauge
	Status    *SimLight
}

// NewSim returns a robot resting on a lit table with nothing in front of it
// and the charger unplugged.
func NewSim() *Sim {
	return &Sim{
		Motors:    &SimMotors{},
		Right:     &SimEncoder{},
		Left:      &SimEncoder{},
		Head:      &SimServo{},
		IRLeft:    NewSimAnalog(5),
		IRRight:   NewSimAnalog(5),
		Light:     NewSimAnalog(300),
		USBDetect: NewSimAnalog(0),
		Range:     NewSimRange(500, 500),
		Gauge:     NewSimGauge(3.9, 80),
		Status:    &SimLight{},
	}
}

// Hardware exposes the simulated devices through the hardware interfaces.
func (s *Sim) Hardware() *Hardware {
	return &Hardware{
		Motors:    s.Motors,
		Right:     s.Right,
		Left:      s.Left,
		Head:      s.Head,
		IRLeft:    s.IRLeft,
		IRRight:   s.IRRight,
		Light:     s.Light,
		USBDetect: s.USBDetect,
		Mux:       s.Range,
		Range:     s.Range,
		Bus:       s.Range,
		Gauge:     s.Gauge,
		Status:    s.Status,
	}
}

// Step advances both encoders in proportion to the current motor commands.
// One step at full duty moves a wheel by divisor-scaled counts.
func (s *Sim) Step(divisor int) {
	if divisor <= 0 {
		divisor = 1
	}
	m1, m2 := s.Motors.Speeds()
	s.Left.Advance(int64(m1 / divisor))
	s.Right.Advance(int64(m2 / divisor))
}
