package models

// EncodedUnit is one compressed access unit produced by the encoder.
// It is consumed exactly once by the stream server and then discarded.
type EncodedUnit struct {
	Payload            []byte // Annex-B access unit, written verbatim to the client
	PresentationTimeUs int64  // presentation time in microseconds
	IsKeyFrame         bool   // true if the unit carries an IDR picture
}

// Size returns the payload length.
func (u *EncodedUnit) Size() int {
	if u == nil {
		return 0
	}
	return len(u.Payload)
}
