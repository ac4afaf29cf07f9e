package cvxkerb

import "math"

// DefaultDeadband is the throttle fraction below which the command is forced
// to exactly zero to avoid actuator chatter near hover-equilibrium solutions.
const DefaultDeadband = 0.01

// Command is a single actuation order: a normalized throttle and an attitude
// target, both derived from one thrust vector. It is issued once and not
// retained by the sink.
type Command struct {
	Throttle  float64   // [0, 1]
	Direction []float64 // unit thrust direction in the guidance frame
	Pitch     float64   // degrees in [-90, 90]
	Heading   float64   // degrees in [0, 360)
}

// MapThrust converts a thrust vector into a Command. The throttle is the
// thrust magnitude over maxThrust, clamped to [0, 1] and zeroed below the
// deadband. A nil or malformed thrust maps to zero throttle with a straight-up
// attitude hold so the autopilot keeps a sane reference.
func MapThrust(f []float64, maxThrust, deadband float64) Command {
	if len(f) != 3 || maxThrust <= 0 {
		return Command{Throttle: 0, Direction: []float64{0, 0, 1}, Pitch: 90, Heading: 0}
	}
	mag := norm(f)
	if mag == 0 {
		return Command{Throttle: 0, Direction: []float64{0, 0, 1}, Pitch: 90, Heading: 0}
	}
	throttle := clamp(mag/maxThrust, 0, 1)
	if throttle < deadband {
		throttle = 0
	}
	dir := unit(f)
	pitch := math.Atan2(dir[2], lateralNorm(dir)) / deg2rad
	heading := math.Mod(math.Atan2(dir[1], dir[0])/deg2rad+360, 360)
	return Command{Throttle: throttle, Direction: dir, Pitch: pitch, Heading: heading}
}

// AttitudeDirection converts a pitch and heading in degrees back into a unit
// direction vector in the guidance frame. It is the inverse of the mapping
// used by MapThrust.
func AttitudeDirection(pitch, heading float64) []float64 {
	p := pitch * deg2rad
	h := heading * deg2rad
	cp := math.Cos(p)
	return []float64{cp * math.Cos(h), cp * math.Sin(h), math.Sin(p)}
}
