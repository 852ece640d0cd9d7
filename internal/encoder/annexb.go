package encoder

import (
	"github.com/Eyevinn/mp4ff/avc"
)

// Splitter cuts an H.264 Annex-B byte stream into access units.
//
// The encoder is told to emit an access unit delimiter (NAL type 9) in front
// of every picture, so a unit runs from one AUD start code to the next.
// Bytes are fed in arbitrary chunks with Write; complete units come out of
// Write as soon as the following AUD is seen.
type Splitter struct {
	buf      []byte
	scanFrom int
}

// Write appends stream bytes and returns every access unit completed by them.
// Returned slices are owned by the caller.
func (s *Splitter) Write(p []byte) [][]byte {
	s.buf = append(s.buf, p...)

	var units [][]byte
	for {
		cut := s.nextBoundary()
		if cut < 0 {
			return units
		}
		unit := make([]byte, cut)
		copy(unit, s.buf[:cut])
		units = append(units, unit)

		s.buf = append(s.buf[:0], s.buf[cut:]...)
		s.scanFrom = 0
	}
}

// Flush returns whatever is buffered as a final unit.
func (s *Splitter) Flush() []byte {
	if len(s.buf) == 0 {
		return nil
	}
	unit := make([]byte, len(s.buf))
	copy(unit, s.buf)
	s.buf = s.buf[:0]
	s.scanFrom = 0
	return unit
}

// Buffered reports how many bytes wait for the next boundary.
func (s *Splitter) Buffered() int {
	return len(s.buf)
}

// nextBoundary finds the offset of the first AUD start code that is not at
// the very beginning of the buffer, or -1.
func (s *Splitter) nextBoundary() int {
	i := s.scanFrom
	if i < 1 {
		i = 1
	}
	for ; i+3 < len(s.buf); i++ {
		if s.buf[i] != 0 || s.buf[i+1] != 0 || s.buf[i+2] != 1 {
			continue
		}
		if avc.GetNaluType(s.buf[i+3]) != avc.NALU_AUD {
			continue
		}
		// Take the leading zero of a 4-byte start code with the next unit.
		cut := i
		if s.buf[i-1] == 0 {
			cut--
		}
		if cut == 0 {
			continue
		}
		return cut
	}
	// Keep the last bytes for the next scan, a start code may straddle writes.
	s.scanFrom = len(s.buf) - 3
	return -1
}

// IsKeyFrame reports whether an Annex-B access unit carries an IDR slice.
func IsKeyFrame(unit []byte) bool {
	for _, nalu := range avc.ExtractNalusFromByteStream(unit) {
		if len(nalu) > 0 && avc.GetNaluType(nalu[0]) == avc.NALU_IDR {
			return true
		}
	}
	return false
}

// PictureSize returns the coded picture size from the first SPS found in the
// access unit.
func PictureSize(unit []byte) (width, height int, ok bool) {
	for _, nalu := range avc.ExtractNalusFromByteStream(unit) {
		if len(nalu) == 0 || avc.GetNaluType(nalu[0]) != avc.NALU_SPS {
			continue
		}
		sps, err := avc.ParseSPSNALUnit(nalu, false)
		if err != nil {
			return 0, 0, false
		}
		return int(sps.Width), int(sps.Height), true
	}
	return 0, 0, false
}
