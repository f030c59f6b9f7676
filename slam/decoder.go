package slam

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SensorRecordSize is the size in bytes of one binary sample from the
// controller: little-endian int16 yaw, angle, distance and four encoder ticks.
const SensorRecordSize = 2 * (3 + EncoderCount)

// sensorRecord mirrors the controller's packed wire layout
type sensorRecord struct {
	Yaw      int16
	Angle    int16
	Distance int16
	Ticks    [EncoderCount]int16
}

func (r sensorRecord) sensorData() SensorData {
	data := SensorData{
		Yaw:      int(r.Yaw),
		Angle:    int(r.Angle),
		Distance: int(r.Distance),
	}
	for i, t := range r.Ticks {
		data.EncoderTicks[i] = int(t)
	}
	return data
}

// DecodeSensorData decodes exactly one binary record
func DecodeSensorData(b []byte) (SensorData, error) {
	if len(b) != SensorRecordSize {
		return SensorData{}, fmt.Errorf("sensor record is %d bytes, expected %d", len(b), SensorRecordSize)
	}
	var rec sensorRecord
	if _, err := binary.Decode(b, binary.LittleEndian, &rec); err != nil {
		return SensorData{}, fmt.Errorf("decoding sensor record: %w", err)
	}
	return rec.sensorData(), nil
}

// ReadSensorData reads one whole record from r. It returns io.EOF when r is
// exhausted on a record boundary and io.ErrUnexpectedEOF for a partial record.
func ReadSensorData(r io.Reader) (SensorData, error) {
	var buf [SensorRecordSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return SensorData{}, err
	}
	return DecodeSensorData(buf[:])
}

// EncodeSensorData produces the binary record for data. Values outside the
// int16 range are rejected.
func EncodeSensorData(data SensorData) ([]byte, error) {
	fields := append([]int{data.Yaw, data.Angle, data.Distance}, data.EncoderTicks[:]...)
	for _, v := range fields {
		if v < -1<<15 || v > 1<<15-1 {
			return nil, fmt.Errorf("sensor value %d does not fit in int16", v)
		}
	}
	rec := sensorRecord{
		Yaw:      int16(data.Yaw),
		Angle:    int16(data.Angle),
		Distance: int16(data.Distance),
	}
	for i, t := range data.EncoderTicks {
		rec.Ticks[i] = int16(t)
	}
	return binary.Append(nil, binary.LittleEndian, rec)
}

// ParseLogLine parses one line of the robot's sensor log:
//
//	<seconds>: <yaw> <angle> <distance> <tick0> <tick1> <tick2> <tick3>
//
// The timestamp prefix is optional.
func ParseLogLine(line string) (SensorData, error) {
	if i := strings.IndexByte(line, ':'); i >= 0 {
		if _, err := strconv.ParseFloat(strings.TrimSpace(line[:i]), 64); err != nil {
			return SensorData{}, fmt.Errorf("invalid timestamp %q: %w", line[:i], err)
		}
		line = line[i+1:]
	}

	fields := strings.Fields(line)
	if len(fields) != 3+EncoderCount {
		return SensorData{}, fmt.Errorf("expected %d values, got %d", 3+EncoderCount, len(fields))
	}
	values := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return SensorData{}, fmt.Errorf("invalid value %q: %w", f, err)
		}
		values[i] = v
	}

	data := SensorData{Yaw: values[0], Angle: values[1], Distance: values[2]}
	copy(data.EncoderTicks[:], values[3:])
	return data, nil
}

// FormatLogLine renders data in the log format read by ParseLogLine
func FormatLogLine(seconds float64, data SensorData) string {
	var b strings.Builder
	b.WriteString(strconv.FormatFloat(seconds, 'f', -1, 64))
	b.WriteString(": ")
	b.WriteString(strconv.Itoa(data.Yaw))
	for _, v := range append([]int{data.Angle, data.Distance}, data.EncoderTicks[:]...) {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}
