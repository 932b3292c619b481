package capture

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// frameHeaderSize is the fixed prefix ahead of every frame payload:
// tick, sim-time bits, captured-at nanos, payload length.
const frameHeaderSize = 8 + 8 + 8 + 4

// EventRecord is one line of the compressed event log.
type EventRecord struct {
	Sequence   uint64 `json:"sequence"`
	Kind       string `json:"kind"`
	CapturedAt string `json:"captured_at"`
	PayloadB64 string `json:"payload_b64"`
}

// Payload decodes the base64 event payload.
func (e EventRecord) Payload() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.PayloadB64)
}

// FrameRecord is one decoded entry of the frame log.
type FrameRecord struct {
	Tick       uint64
	SimMS      float64
	CapturedAt time.Time
	Payload    []byte
}

// Bundle provides read access to a capture bundle directory.
type Bundle struct {
	Manifest Manifest
	Header   Header
	dir      string
}

// OpenBundle loads the manifest and header of a capture bundle.
func OpenBundle(dir string) (*Bundle, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if manifest.Version <= 0 {
		return nil, fmt.Errorf("manifest version must be positive, got %d", manifest.Version)
	}
	header, err := ReadHeader(filepath.Join(dir, "header.json"))
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return &Bundle{Manifest: manifest, Header: header, dir: dir}, nil
}

// Events streams every event record through the callback in log order.
func (b *Bundle) Events(apply func(EventRecord) error) error {
	if b == nil {
		return fmt.Errorf("bundle not opened")
	}
	if apply == nil {
		return fmt.Errorf("event callback must be provided")
	}
	file, err := os.Open(filepath.Join(b.dir, b.Manifest.EventsPath))
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return fmt.Errorf("decode event line: %w", err)
		}
		if err := apply(record); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Frames streams every frame record through the callback in log order.
func (b *Bundle) Frames(apply func(FrameRecord) error) error {
	if b == nil {
		return fmt.Errorf("bundle not opened")
	}
	if apply == nil {
		return fmt.Errorf("frame callback must be provided")
	}
	file, err := os.Open(filepath.Join(b.dir, b.Manifest.FramesPath))
	if err != nil {
		return err
	}
	defer file.Close()

	stream, err := zstd.NewReader(file)
	if err != nil {
		return err
	}
	defer stream.Close()

	header := make([]byte, frameHeaderSize)
	for {
		//1.- The fixed prefix carries enough to size the payload read.
		if _, err := io.ReadFull(stream, header); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read frame header: %w", err)
		}
		record := FrameRecord{
			Tick:       binary.LittleEndian.Uint64(header[0:8]),
			SimMS:      math.Float64frombits(binary.LittleEndian.Uint64(header[8:16])),
			CapturedAt: time.Unix(0, int64(binary.LittleEndian.Uint64(header[16:24]))).UTC(),
		}
		size := binary.LittleEndian.Uint32(header[24:28])
		record.Payload = make([]byte, size)
		if _, err := io.ReadFull(stream, record.Payload); err != nil {
			return fmt.Errorf("read frame payload: %w", err)
		}
		if err := apply(record); err != nil {
			return err
		}
	}
}
