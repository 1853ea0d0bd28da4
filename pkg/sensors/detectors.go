package sensors

import (
	"math"

	"github.com/teslashibe/go-playbot/pkg/protocol"
	"github.com/teslashibe/go-playbot/pkg/robot"
)

func (e *Engine) checkLight() {
	if e.opts.Light == nil {
		return
	}
	v, err := e.opts.Light.Read()
	if err != nil {
		e.logger.Debug("light read failed", "error", err)
		return
	}
	e.lightValue = v

	dark := v < e.set.DarkThreshold
	if e.dark.Update(dark) {
		e.opts.Emitter.Emit(protocol.NewLightMessage(dark))
		e.logger.Debug("light state changed", "dark", dark, "value", v)
	}

	level := e.set.LitBrightness
	if e.dark.State() {
		level = e.set.DarkBrightness
	}
	if int(level) != e.brightness && e.opts.Status != nil {
		if err := e.opts.Status.SetBrightness(level); err != nil {
			e.logger.Debug("status light write failed", "error", err)
			return
		}
		e.brightness = int(level)
	}
}

// readIR averages a burst of Window samples from in.
func (e *Engine) readIR(in robot.AnalogInput) (int, error) {
	e.irAvg.Reset()
	for i := 0; i < e.irAvg.Size(); i++ {
		v, err := in.Read()
		if err != nil {
			return 0, err
		}
		e.irAvg.Add(float64(v))
	}
	return int(e.irAvg.Mean()), nil
}

func (e *Engine) checkEdge() {
	if e.opts.IRLeft == nil || e.opts.IRRight == nil {
		return
	}
	left, err := e.readIR(e.opts.IRLeft)
	if err != nil {
		e.logger.Debug("IR read failed", "side", "left", "error", err)
		return
	}
	right, err := e.readIR(e.opts.IRRight)
	if err != nil {
		e.logger.Debug("IR read failed", "side", "right", "error", err)
		return
	}
	e.irLeft, e.irRight = left, right

	edge := left >= e.set.IRLeftThreshold || right >= e.set.IRRightThreshold
	if !e.edge.Update(edge) {
		return
	}
	if !edge {
		e.logger.Info("edge cleared", "left", left, "right", right)
		return
	}

	if e.opts.OnEdge != nil {
		e.opts.OnEdge()
	}
	if e.opts.Wheels.Motors != nil {
		if err := e.opts.Wheels.Halt(); err != nil {
			e.logger.Warn("motor halt failed", "error", err)
		}
	}
	e.opts.Emitter.Emit(protocol.NewEdgeMessage())
	e.logger.Info("edge detected", "left", left, "right", right)
}

// readTof reads one channel through the multiplexer. Zero or failed reads
// return the last positive reading of that channel.
func (e *Engine) readTof(ch uint8) float64 {
	if e.opts.Mux == nil || e.opts.Range == nil {
		return e.tof[ch]
	}
	if err := e.opts.Mux.SelectChannel(ch); err != nil {
		e.logger.Debug("mux select failed", "channel", ch, "error", err)
		return e.tof[ch]
	}
	d, err := e.opts.Range.ReadDistance()
	if err != nil {
		e.logger.Debug("range read failed", "channel", ch, "error", err)
		return e.tof[ch]
	}
	if d > 0 {
		e.tof[ch] = float64(d)
	}
	return e.tof[ch]
}

func (e *Engine) checkCollision() {
	d := e.readTof(robot.FrontChannel)
	if d <= e.set.CollisionMinValid || d >= e.set.CollisionMaxValid {
		return
	}

	smoothed := e.front.Add(d)
	if smoothed >= e.set.CollisionThreshold {
		e.hits = 0
		e.latched = false
		return
	}

	if e.hits < math.MaxInt32 {
		e.hits++
	}
	if e.hits >= e.set.CollisionValidation && !e.latched {
		e.latched = true
		e.opts.Emitter.Emit(protocol.NewCollisionMessage())
		e.logger.Info("front collision", "smoothed_mm", smoothed, "raw_mm", d)
	}
}

// SendBundle samples every sensor and emits one sensor message.
func (e *Engine) SendBundle() {
	var b protocol.SensorBundle

	if e.opts.IRRight != nil {
		if v, err := e.readIR(e.opts.IRRight); err == nil {
			b.IRRight = v
		}
	}
	if e.opts.IRLeft != nil {
		if v, err := e.readIR(e.opts.IRLeft); err == nil {
			b.IRLeft = v
		}
	}

	b.TofFront = e.readTof(robot.FrontChannel)
	if e.opts.Bus != nil {
		if err := e.opts.Bus.Flush(); err != nil {
			e.logger.Debug("bus flush failed", "error", err)
		}
	}
	b.TofBack = e.readTof(robot.BackChannel)

	if e.opts.Wheels.Right != nil {
		b.EncoderRight = e.opts.Wheels.Right.Read()
	}
	if e.opts.Wheels.Left != nil {
		b.EncoderLeft = e.opts.Wheels.Left.Read()
	}
	if e.opts.Light != nil {
		if v, err := e.opts.Light.Read(); err == nil {
			b.Light = v
		}
	}
	if e.opts.Battery != nil {
		b.BatteryVoltage = e.opts.Battery.Voltage()
		b.Charging = e.opts.Battery.Charging()
	}
	if e.opts.Distance != nil {
		b.DistanceM = e.opts.Distance.DistanceMeters()
	}

	e.opts.Emitter.Emit(protocol.NewSensorMessage(b))
}
