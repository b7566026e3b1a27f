package oracle

import (
	"encoding/binary"
	"fmt"
	"time"

	"memewars/internal/battle"
)

// Observations are cached as a fixed 40-byte record followed by the feed id:
//
//	[0:4)   magic
//	[4:8)   exponent  int32
//	[8:16)  price     int64
//	[16:24) conf      uint64
//	[24:32) publish   int64 unix seconds
//	[32:40) reserved
const (
	observationMagic uint32 = 0x4d574f42 // "MWOB"
	ObservationSize         = 40
)

func EncodeObservation(obs Observation) []byte {
	buf := make([]byte, ObservationSize+len(obs.FeedID))
	binary.LittleEndian.PutUint32(buf[0:4], observationMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(obs.Exponent))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(obs.Price))
	binary.LittleEndian.PutUint64(buf[16:24], obs.Confidence)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(obs.PublishTime.Unix()))
	copy(buf[ObservationSize:], obs.FeedID)
	return buf
}

// DecodeObservation fails with ErrInvalidPriceFeed on a short or foreign
// payload.
func DecodeObservation(b []byte) (Observation, error) {
	if len(b) < ObservationSize {
		return Observation{}, fmt.Errorf("%w: payload %d bytes, need %d", battle.ErrInvalidPriceFeed, len(b), ObservationSize)
	}
	if binary.LittleEndian.Uint32(b[0:4]) != observationMagic {
		return Observation{}, fmt.Errorf("%w: bad magic", battle.ErrInvalidPriceFeed)
	}
	return Observation{
		FeedID:      string(b[ObservationSize:]),
		Exponent:    int32(binary.LittleEndian.Uint32(b[4:8])),
		Price:       int64(binary.LittleEndian.Uint64(b[8:16])),
		Confidence:  binary.LittleEndian.Uint64(b[16:24]),
		PublishTime: time.Unix(int64(binary.LittleEndian.Uint64(b[24:32])), 0).UTC(),
	}, nil
}
