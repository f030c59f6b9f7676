package slam

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate is the rate of the robot controller's serial link
const DefaultBaudRate = 230400

// PortOptions describes the serial connection parameters of the controller link
type PortOptions struct {
	BaudRate int    `yaml:"baudRate" json:"baudRate"`
	DataBits int    `yaml:"dataBits" json:"dataBits"`
	StopBits int    `yaml:"stopBits" json:"stopBits"`
	Parity   string `yaml:"parity" json:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	return opts, nil
}

// SerialMode converts the options into the mode used to open the port
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// SampleSource delivers sensor samples in arrival order. Next returns io.EOF
// once the source is exhausted.
type SampleSource interface {
	Next() (SensorData, error)
	Close() error
}

// StreamSource decodes fixed-size binary records from a byte stream
type StreamSource struct {
	rc io.ReadCloser
	r  *bufio.Reader
}

// NewStreamSource wraps rc; the source takes ownership and closes it
func NewStreamSource(rc io.ReadCloser) *StreamSource {
	return &StreamSource{rc: rc, r: bufio.NewReaderSize(rc, 64*SensorRecordSize)}
}

// Next reads one record. A truncated final record yields io.ErrUnexpectedEOF.
func (s *StreamSource) Next() (SensorData, error) {
	return ReadSensorData(s.r)
}

// Close closes the underlying stream
func (s *StreamSource) Close() error {
	return s.rc.Close()
}

// OpenSerialSource opens the controller's serial device
func OpenSerialSource(device string, opts PortOptions) (*StreamSource, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", device, err)
	}
	return NewStreamSource(port), nil
}

// ReplaySource streams a recorded text log line by line. Blank lines are
// skipped; any other line that does not parse is an error.
type ReplaySource struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
	line    int
}

// NewReplaySource wraps rc; the source takes ownership and closes it
func NewReplaySource(rc io.ReadCloser) *ReplaySource {
	return &ReplaySource{rc: rc, scanner: bufio.NewScanner(rc)}
}

// OpenReplaySource opens a recorded log file
func OpenReplaySource(path string) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening replay log: %w", err)
	}
	return NewReplaySource(f), nil
}

// Next returns the next sample of the log
func (s *ReplaySource) Next() (SensorData, error) {
	for s.scanner.Scan() {
		s.line++
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" {
			continue
		}
		data, err := ParseLogLine(text)
		if err != nil {
			return SensorData{}, fmt.Errorf("replay line %d: %w", s.line, err)
		}
		return data, nil
	}
	if err := s.scanner.Err(); err != nil {
		return SensorData{}, fmt.Errorf("reading replay log: %w", err)
	}
	return SensorData{}, io.EOF
}

// Close closes the log
func (s *ReplaySource) Close() error {
	return s.rc.Close()
}

// IsEndOfStream reports whether err marks the normal end of a source
func IsEndOfStream(err error) bool {
	return errors.Is(err, io.EOF)
}
