package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/soundprediction/spectracluster/pkg/cluster"
	"github.com/soundprediction/spectracluster/pkg/consensus"
)

// magic and version identify the on-disk cluster record format (spec.md
// §4.8: "header = {magicU32, versionU16, payloadLen}").
const (
	magic         uint32 = 0x53434c52 // "SCLR"
	formatVersion uint16 = 1
)

// EncodeCluster serializes c into the versioned, length-prefixed binary
// format: a {magic, version, payloadLen} header followed by id,
// length-prefixed memberIds, the consensus sparse bins, and bestMatches.
// All integers are little-endian.
func EncodeCluster(c *cluster.Cluster) ([]byte, error) {
	var payload bytes.Buffer

	if err := writeString(&payload, c.ID()); err != nil {
		return nil, err
	}

	members := c.MemberIDs()
	if err := binary.Write(&payload, binary.LittleEndian, uint32(len(members))); err != nil {
		return nil, err
	}
	for _, m := range members {
		if err := writeString(&payload, m); err != nil {
			return nil, err
		}
	}

	if err := encodeConsensus(&payload, c.Consensus()); err != nil {
		return nil, err
	}

	matches := c.BestMatches()
	if err := binary.Write(&payload, binary.LittleEndian, uint32(len(matches))); err != nil {
		return nil, err
	}
	for _, m := range matches {
		if err := writeString(&payload, m.OtherID); err != nil {
			return nil, err
		}
		if err := binary.Write(&payload, binary.LittleEndian, m.Similarity); err != nil {
			return nil, err
		}
	}

	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, magic); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.LittleEndian, formatVersion); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.LittleEndian, uint32(payload.Len())); err != nil {
		return nil, err
	}
	if _, err := out.Write(payload.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func encodeConsensus(w io.Writer, cs *consensus.State) error {
	if err := writeString(w, cs.Uui()); err != nil {
		return err
	}
	for _, v := range []int64{cs.NSpectra(), cs.SumPrecursorMz(), cs.SumPrecursorCharge()} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	votes := cs.ChargeVotes()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(votes))); err != nil {
		return err
	}
	for charge, count := range votes {
		if err := binary.Write(w, binary.LittleEndian, charge); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, count); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, cs.NoiseIncrement()); err != nil {
		return err
	}

	bins := cs.SparseBins()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(bins))); err != nil {
		return err
	}
	for _, b := range bins {
		if err := binary.Write(w, binary.LittleEndian, b.MzBin); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, b.SummedIntensity); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, b.Count); err != nil {
			return err
		}
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// DecodeCluster parses a record produced by EncodeCluster. Any header
// mismatch or truncation is an *IntegrityError; per spec.md §7 this is
// never best-effort recovered, only surfaced.
func DecodeCluster(data []byte) (*cluster.Cluster, error) {
	r := bytes.NewReader(data)

	var gotMagic uint32
	var gotVersion uint16
	var payloadLen uint32
	if err := binary.Read(r, binary.LittleEndian, &gotMagic); err != nil {
		return nil, &IntegrityError{Reason: fmt.Sprintf("truncated header: %v", err)}
	}
	if gotMagic != magic {
		return nil, &IntegrityError{Reason: fmt.Sprintf("bad magic %#x", gotMagic)}
	}
	if err := binary.Read(r, binary.LittleEndian, &gotVersion); err != nil {
		return nil, &IntegrityError{Reason: fmt.Sprintf("truncated header: %v", err)}
	}
	if gotVersion != formatVersion {
		return nil, &IntegrityError{Reason: fmt.Sprintf("unsupported version %d", gotVersion)}
	}
	if err := binary.Read(r, binary.LittleEndian, &payloadLen); err != nil {
		return nil, &IntegrityError{Reason: fmt.Sprintf("truncated header: %v", err)}
	}
	if uint32(r.Len()) < payloadLen {
		return nil, &IntegrityError{Reason: "payload shorter than declared length"}
	}

	id, err := readString(r)
	if err != nil {
		return nil, &IntegrityError{Reason: fmt.Sprintf("id: %v", err)}
	}

	var memberCount uint32
	if err := binary.Read(r, binary.LittleEndian, &memberCount); err != nil {
		return nil, &IntegrityError{Reason: fmt.Sprintf("memberCount: %v", err)}
	}
	members := make([]string, memberCount)
	for i := range members {
		members[i], err = readString(r)
		if err != nil {
			return nil, &IntegrityError{Reason: fmt.Sprintf("memberId[%d]: %v", i, err)}
		}
	}

	cs, err := decodeConsensus(r)
	if err != nil {
		return nil, err
	}

	var matchCount uint32
	if err := binary.Read(r, binary.LittleEndian, &matchCount); err != nil {
		return nil, &IntegrityError{Reason: fmt.Sprintf("matchCount: %v", err)}
	}
	matches := make([]cluster.Match, matchCount)
	for i := range matches {
		otherID, err := readString(r)
		if err != nil {
			return nil, &IntegrityError{Reason: fmt.Sprintf("match[%d].id: %v", i, err)}
		}
		var sim float32
		if err := binary.Read(r, binary.LittleEndian, &sim); err != nil {
			return nil, &IntegrityError{Reason: fmt.Sprintf("match[%d].similarity: %v", i, err)}
		}
		matches[i] = cluster.Match{OtherID: otherID, Similarity: sim}
	}

	return cluster.Restore(id, members, cs, matches), nil
}

func decodeConsensus(r io.Reader) (*consensus.State, error) {
	uui, err := readString(r)
	if err != nil {
		return nil, &IntegrityError{Reason: fmt.Sprintf("consensus.uui: %v", err)}
	}

	var nSpectra, sumPrecursorMz, sumPrecursorCharge int64
	for _, dst := range []*int64{&nSpectra, &sumPrecursorMz, &sumPrecursorCharge} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, &IntegrityError{Reason: fmt.Sprintf("consensus sums: %v", err)}
		}
	}

	var voteCount uint32
	if err := binary.Read(r, binary.LittleEndian, &voteCount); err != nil {
		return nil, &IntegrityError{Reason: fmt.Sprintf("chargeVotes count: %v", err)}
	}
	votes := make(map[int32]int64, voteCount)
	for i := uint32(0); i < voteCount; i++ {
		var charge int32
		var count int64
		if err := binary.Read(r, binary.LittleEndian, &charge); err != nil {
			return nil, &IntegrityError{Reason: fmt.Sprintf("chargeVotes[%d].charge: %v", i, err)}
		}
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return nil, &IntegrityError{Reason: fmt.Sprintf("chargeVotes[%d].count: %v", i, err)}
		}
		votes[charge] = count
	}

	var noiseIncrement int32
	if err := binary.Read(r, binary.LittleEndian, &noiseIncrement); err != nil {
		return nil, &IntegrityError{Reason: fmt.Sprintf("noiseIncrement: %v", err)}
	}

	var binCount uint32
	if err := binary.Read(r, binary.LittleEndian, &binCount); err != nil {
		return nil, &IntegrityError{Reason: fmt.Sprintf("bins count: %v", err)}
	}
	bins := make([]consensus.SparseBin, binCount)
	for i := range bins {
		if err := binary.Read(r, binary.LittleEndian, &bins[i].MzBin); err != nil {
			return nil, &IntegrityError{Reason: fmt.Sprintf("bins[%d].mzBin: %v", i, err)}
		}
		if err := binary.Read(r, binary.LittleEndian, &bins[i].SummedIntensity); err != nil {
			return nil, &IntegrityError{Reason: fmt.Sprintf("bins[%d].summedIntensity: %v", i, err)}
		}
		if err := binary.Read(r, binary.LittleEndian, &bins[i].Count); err != nil {
			return nil, &IntegrityError{Reason: fmt.Sprintf("bins[%d].count: %v", i, err)}
		}
	}

	return consensus.Restore(uui, nSpectra, sumPrecursorMz, sumPrecursorCharge, votes, bins, noiseIncrement), nil
}
