package packet

var _ PacketPacker = &BinaryPacketPacker{}

// PacketPacker frames units for the datagram channel.
type PacketPacker interface {
	GetHeaderLen() int
	Pack(sessionID, index uint64, payload []byte) ([]byte, error)
	Unpack(raw []byte) (*DataFrame, error)
}

// BinaryPacketPacker uses the little-endian DataFrame layer.
type BinaryPacketPacker struct {
}

func NewBinaryPacketPacker() *BinaryPacketPacker {
	return &BinaryPacketPacker{}
}

func (bp *BinaryPacketPacker) GetHeaderLen() int {
	return 20
}

func (bp *BinaryPacketPacker) Pack(sessionID, index uint64, payload []byte) ([]byte, error) {
	return EncodeDataFrame(sessionID, index, payload)
}

func (bp *BinaryPacketPacker) Unpack(raw []byte) (*DataFrame, error) {
	return DecodeDataFrame(raw)
}
