// Package telemetry exposes the estimator and feed-forward observables
// to a tuning session: coherent snapshots, a compact text frame
// encoding, an MQTT publisher and a command console driving the
// parameter setters.
//
// Everything here runs in background context. Snapshots go through the
// public getters only, so the hot-path ordering rules of the observer
// are never bypassed.
package telemetry

import (
	"bytes"
	"strconv"

	"tinygo.org/x/foc"
	"tinygo.org/x/foc/feedforward"
	"tinygo.org/x/foc/sto"
)

// Error is a lightweight error type used for TinyGo compatibility.
type Error string

func (e Error) Error() string { return string(e) }

// Snapshot is a background-context view of one motor's observables.
type Snapshot struct {
	ElAngle      int16
	ElSpeedDpp   int16
	MecSpeed01Hz int16

	Bemf    foc.AlphaBeta
	Current foc.AlphaBeta

	ObsBemfLevel int32
	EstBemfLevel int32

	SpeedReliable  bool
	BemfConsistent bool

	Vqdff      foc.QD
	VqdAvPIout foc.QD
}

// Collect reads a snapshot from the observer and the feed-forward
// stage.
func Collect(obs *sto.Handle, ff *feedforward.Handle) Snapshot {
	return Snapshot{
		ElAngle:        obs.Super.ElAngle,
		ElSpeedDpp:     obs.Super.ElSpeedDpp,
		MecSpeed01Hz:   obs.Super.AvrMecSpeed01Hz,
		Bemf:           obs.EstimatedBemf(),
		Current:        obs.EstimatedCurrent(),
		ObsBemfLevel:   obs.ObservedBemfLevel(),
		EstBemfLevel:   obs.EstimatedBemfLevel(),
		SpeedReliable:  obs.IsVarianceTight(),
		BemfConsistent: obs.IsBemfConsistent(),
		Vqdff:          ff.Vqdff(),
		VqdAvPIout:     ff.VqdAvPIout(),
	}
}

func appendField(dst []byte, key string, v int64) []byte {
	if len(dst) > 0 {
		dst = append(dst, ' ')
	}
	dst = append(dst, key...)
	dst = append(dst, '=')
	return strconv.AppendInt(dst, v, 10)
}

func appendFlag(dst []byte, key string, v bool) []byte {
	n := int64(0)
	if v {
		n = 1
	}
	return appendField(dst, key, n)
}

// AppendFrame appends the snapshot to dst as one space-separated
// key=value line and returns the extended buffer. The encoding is
// allocation-free when dst has capacity.
func AppendFrame(dst []byte, s Snapshot) []byte {
	dst = appendField(dst, "angle", int64(s.ElAngle))
	dst = appendField(dst, "dpp", int64(s.ElSpeedDpp))
	dst = appendField(dst, "mec01hz", int64(s.MecSpeed01Hz))
	dst = appendField(dst, "bemf.a", int64(s.Bemf.Alpha))
	dst = appendField(dst, "bemf.b", int64(s.Bemf.Beta))
	dst = appendField(dst, "i.a", int64(s.Current.Alpha))
	dst = appendField(dst, "i.b", int64(s.Current.Beta))
	dst = appendField(dst, "bemflvl.obs", int64(s.ObsBemfLevel))
	dst = appendField(dst, "bemflvl.est", int64(s.EstBemfLevel))
	dst = appendFlag(dst, "reliable", s.SpeedReliable)
	dst = appendFlag(dst, "consistent", s.BemfConsistent)
	dst = appendField(dst, "vff.q", int64(s.Vqdff.Q))
	dst = appendField(dst, "vff.d", int64(s.Vqdff.D))
	dst = appendField(dst, "vavg.q", int64(s.VqdAvPIout.Q))
	dst = appendField(dst, "vavg.d", int64(s.VqdAvPIout.D))
	return dst
}

// FrameField extracts one key's value from an encoded frame. It is the
// host-side counterpart of AppendFrame, mainly for tooling and tests.
func FrameField(frame []byte, key string) (int64, error) {
	for _, kv := range bytes.Fields(frame) {
		eq := bytes.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		if string(kv[:eq]) != key {
			continue
		}
		return strconv.ParseInt(string(kv[eq+1:]), 10, 64)
	}
	return 0, Error("telemetry: field not found: " + key)
}
