package splitter

import (
	"bufio"
	"io"
	"os"
	"sort"

	"github.com/netsys-lab/rftp/packet"
	"github.com/netsys-lab/rftp/shared"
	"github.com/netsys-lab/rftp/utils"
	"github.com/scionproto/scion/go/lib/serrors"
	log "github.com/sirupsen/logrus"
)

// UnitCount returns the number of units a source of size bytes splits into.
func UnitCount(size int64, unitSize uint32) uint64 {
	if size <= 0 || unitSize == 0 {
		return 0
	}
	return utils.CeilForceInt(uint64(size), uint64(unitSize))
}

// Split reads source in chunks of at most unitSize bytes. A zero-byte source
// yields no units and no error.
func Split(source string, unitSize uint32) ([]packet.Unit, error) {
	if unitSize == 0 {
		return nil, serrors.WrapStr("splitting file", shared.ErrEmptyConfiguration,
			"source", source)
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, serrors.WrapStr("opening source", shared.ErrSourceUnavailable,
			"source", source, "err", err)
	}
	defer f.Close()

	size := int64(-1)
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}
	units, err := splitReader(f, unitSize, size)
	if err != nil {
		return nil, serrors.WrapStr("reading source", err, "source", source)
	}
	log.Debugf("Split %s into %d units of %d bytes", source, len(units), unitSize)
	return units, nil
}

// SplitReader splits everything readable from r.
func SplitReader(r io.Reader, unitSize uint32) ([]packet.Unit, error) {
	if unitSize == 0 {
		return nil, shared.ErrEmptyConfiguration
	}
	return splitReader(r, unitSize, -1)
}

// splitReader reads units until EOF. size is the expected source length,
// negative when unknown; chunks are never allocated larger than what is
// expected to remain.
func splitReader(r io.Reader, unitSize uint32, size int64) ([]packet.Unit, error) {
	br := bufio.NewReader(r)
	units := make([]packet.Unit, 0, UnitCount(size, unitSize))
	var sequence uint32
	var consumed int64
	for {
		if _, err := br.Peek(1); err != nil {
			if err == io.EOF {
				return units, nil
			}
			return nil, serrors.WrapStr("reading chunk", shared.ErrSourceUnavailable,
				"sequence", sequence, "err", err)
		}
		chunkLen := int64(unitSize)
		if remaining := size - consumed; size >= 0 && remaining > 0 && remaining < chunkLen {
			chunkLen = remaining
		}
		chunk := make([]byte, chunkLen)
		n, err := io.ReadFull(br, chunk)
		if n > 0 {
			units = append(units, packet.NewUnit(sequence, chunk[:n]))
			sequence++
			consumed += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return units, nil
		}
		if err != nil {
			return nil, serrors.WrapStr("reading chunk", shared.ErrSourceUnavailable,
				"sequence", sequence, "err", err)
		}
	}
}

// Merge writes the payloads of units in ascending sequence order to
// destination, truncating it first. The input slice is not reordered.
func Merge(destination string, units []packet.Unit) error {
	if len(units) == 0 {
		return serrors.WrapStr("merging units", shared.ErrNoUnits,
			"destination", destination)
	}

	sorted := make([]packet.Unit, len(units))
	copy(sorted, units)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Sequence < sorted[j].Sequence
	})
	for _, u := range sorted {
		if uint64(u.Length) > uint64(len(u.Payload)) {
			return serrors.WrapStr("merging units", shared.ErrInvalidUnit,
				"sequence", u.Sequence, "length", u.Length, "payload", len(u.Payload))
		}
	}

	f, err := os.OpenFile(destination, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return serrors.WrapStr("creating destination", shared.ErrDestinationUnavailable,
			"destination", destination, "err", err)
	}
	return writeUnits(f, sorted, destination)
}

func writeUnits(f *os.File, sorted []packet.Unit, destination string) error {
	w := bufio.NewWriter(f)
	for _, u := range sorted {
		if _, err := w.Write(u.Payload[:u.Length]); err != nil {
			f.Close()
			return serrors.WrapStr("writing unit", shared.ErrPartialWrite,
				"destination", destination, "sequence", u.Sequence, "err", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return serrors.WrapStr("flushing destination", shared.ErrPartialWrite,
			"destination", destination, "err", err)
	}
	if err := f.Close(); err != nil {
		return serrors.WrapStr("closing destination", shared.ErrPartialWrite,
			"destination", destination, "err", err)
	}
	return nil
}
