package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// encodePeaksFloat64 encodes peak data as little-endian float64 blob
func encodePeaksFloat64(peaks []core.Peak, useMZ bool) []byte {
	buf := make([]byte, len(peaks)*8)
	for i, peak := range peaks {
		value := peak.Intensity
		if useMZ {
			value = peak.MZ
		}
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(value))
	}
	return buf
}

// decodePeaks rebuilds peaks from a pair of little-endian float64 blobs.
func decodePeaks(mzBlob, intBlob []byte) ([]core.Peak, error) {
	if len(mzBlob)%8 != 0 || len(mzBlob) != len(intBlob) {
		return nil, fmt.Errorf("corrupt peak blobs: %d m/z bytes, %d intensity bytes", len(mzBlob), len(intBlob))
	}
	peaks := make([]core.Peak, len(mzBlob)/8)
	for i := range peaks {
		peaks[i] = core.Peak{
			MZ:        math.Float64frombits(binary.LittleEndian.Uint64(mzBlob[i*8:])),
			Intensity: math.Float64frombits(binary.LittleEndian.Uint64(intBlob[i*8:])),
		}
	}
	return peaks, nil
}
