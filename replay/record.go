// Package replay implements the replay record wire format, the bounded
// sliding window the trainer samples from, and the synchronized queue that
// feeds records from readers into the window (§4.3 step 4, §4.4, §6).
package replay

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Record is one (image, value, policy) triple, emitted once per committed
// move in self-play (§3 "Replay record").
type Record struct {
	Image  []float32 // length Channels*8*8
	Value  float32   // final outcome from the record's side-to-move, in {-1,0,+1}
	Policy []float32 // length 4672, child-visit frequencies
}

// Encode renders a Record as the §6 wire line:
// "base64(image) SPACE base64(value) SPACE base64(policy)".
func Encode(r Record) string {
	return fmt.Sprintf("%s %s %s", encodeTensor(r.Image), encodeTensor([]float32{r.Value}), encodeTensor(r.Policy))
}

// Decode parses one wire line back into a Record. Codec errors here are
// non-fatal for the caller: §7 says to log and skip the line, keeping the
// stream alive.
func Decode(line string) (Record, error) {
	var image, value, policy string
	n, err := fmt.Sscanf(line, "%s %s %s", &image, &value, &policy)
	if err != nil || n != 3 {
		return Record{}, errors.New("replay: malformed record line")
	}

	img, err := decodeTensor(image)
	if err != nil {
		return Record{}, errors.Wrap(err, "replay: decode image")
	}
	val, err := decodeTensor(value)
	if err != nil {
		return Record{}, errors.Wrap(err, "replay: decode value")
	}
	if len(val) != 1 {
		return Record{}, errors.New("replay: value blob is not scalar")
	}
	pol, err := decodeTensor(policy)
	if err != nil {
		return Record{}, errors.Wrap(err, "replay: decode policy")
	}

	return Record{Image: img, Value: val[0], Policy: pol}, nil
}

// encodeTensor is the canonical serialized form of a []float32: a
// little-endian IEEE-754 byte sequence, base64-standard-encoded.
func encodeTensor(xs []float32) string {
	buf := make([]byte, 4*len(xs))
	for i, x := range xs {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func decodeTensor(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, errors.New("replay: tensor blob is not a multiple of 4 bytes")
	}
	out := make([]float32, len(buf)/4)
	r := bytes.NewReader(buf)
	for i := range out {
		var bits uint32
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return nil, err
		}
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
