package outsim

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// GaugeSize is the size of an OutGauge packet without the optional id.
const GaugeSize = 92

// UnknownCar replaces a car name that is not valid text, as sent for mods.
const UnknownCar = "mod"

// OutGauge flags
const (
	GaugeShiftLight = 1 << 0
	GaugeTurbo      = 1 << 13
	GaugeKm         = 1 << 14
	GaugeBar        = 1 << 15
)

type wireGauge struct {
	Time        uint32
	Car         [4]byte
	Flags       uint16
	Gear        uint8
	PLID        uint8
	Speed       float32
	RPM         float32
	Turbo       float32
	EngTemp     float32
	Fuel        float32
	OilPressure float32
	OilTemp     float32
	DashLights  uint32
	ShowLights  uint32
	Throttle    float32
	Brake       float32
	Clutch      float32
	Display1    [16]byte
	Display2    [16]byte
}

// Gauge is one decoded OutGauge packet.
type Gauge struct {
	Time               uint32 // ms
	Car                string
	Flags              uint16
	Gear               int // 0 reverse, 1 neutral, 2 first...
	PLID               uint8
	Speed              float64 // m/s
	RPM                float64
	TurboPressure      float64 // bar
	EngineTemperature  float64 // C
	Fuel               float64 // 0 to 1
	OilPressure        float64 // bar
	OilTemperature     float64 // C
	DashLights         uint32
	ShowLights         uint32
	Throttle           float64
	Brake              float64
	Clutch             float64
	Display1, Display2 string
}

// DecodeGauge decodes an OutGauge packet. An undecodable car name becomes UnknownCar.
func DecodeGauge(data []byte) (*Gauge, error) {
	if len(data) < GaugeSize {
		return nil, &ProtocolError{Packet: "outgauge", Reason: fmt.Sprintf("%d bytes, want %d", len(data), GaugeSize), Err: ErrShortPacket}
	}

	var w wireGauge
	if err := binary.Read(bytes.NewReader(data[:GaugeSize]), binary.LittleEndian, &w); err != nil {
		return nil, &ProtocolError{Packet: "outgauge", Reason: "unable to unpack", Err: err}
	}

	car := cString(w.Car[:])
	if !utf8.ValidString(car) {
		car = UnknownCar
	}

	return &Gauge{
		Time:              w.Time,
		Car:               car,
		Flags:             w.Flags,
		Gear:              int(w.Gear),
		PLID:              w.PLID,
		Speed:             float64(w.Speed),
		RPM:               float64(w.RPM),
		TurboPressure:     float64(w.Turbo),
		EngineTemperature: float64(w.EngTemp),
		Fuel:              float64(w.Fuel),
		OilPressure:       float64(w.OilPressure),
		OilTemperature:    float64(w.OilTemp),
		DashLights:        w.DashLights,
		ShowLights:        w.ShowLights,
		Throttle:          float64(w.Throttle),
		Brake:             float64(w.Brake),
		Clutch:            float64(w.Clutch),
		Display1:          cString(w.Display1[:]),
		Display2:          cString(w.Display2[:]),
	}, nil
}

// cString returns b up to the first NUL byte.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
