package packet

import (
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/netsys-lab/rftp/shared"
	"github.com/scionproto/scion/go/lib/serrors"
)

// LayerTypeDataFrame identifies the data channel header in gopacket.
var LayerTypeDataFrame = gopacket.RegisterLayerType(
	1610,
	gopacket.LayerTypeMetadata{
		Name:    "RFTPDataFrame",
		Decoder: gopacket.DecodeFunc(decodeDataFrame),
	},
)

// Ensuring interface compatability at compile time.
var _ gopacket.DecodingLayer = &DataFrame{}
var _ gopacket.SerializableLayer = &DataFrame{}

// DataFrame is the fixed header preceding every unit on the datagram channel:
//   session_id u64 | packet_index u64 | data_length u32
// little-endian, no padding, followed by exactly data_length payload bytes.
type DataFrame struct {
	layers.BaseLayer
	SessionID   uint64
	PacketIndex uint64
	DataLength  uint32
}

func (f *DataFrame) LayerType() gopacket.LayerType {
	return LayerTypeDataFrame
}

func (f *DataFrame) CanDecode() gopacket.LayerClass {
	return LayerTypeDataFrame
}

func (f *DataFrame) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypePayload
}

func (f *DataFrame) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < shared.DATA_HEADER_SIZE {
		df.SetTruncated()
		return serrors.WrapStr("decoding data frame", shared.ErrHeaderTooShort,
			"len", len(data))
	}
	f.SessionID = binary.LittleEndian.Uint64(data[0:8])
	f.PacketIndex = binary.LittleEndian.Uint64(data[8:16])
	f.DataLength = binary.LittleEndian.Uint32(data[16:20])

	available := len(data) - shared.DATA_HEADER_SIZE
	if uint64(available) < uint64(f.DataLength) {
		df.SetTruncated()
		return serrors.WrapStr("decoding data frame", shared.ErrTruncatedPayload,
			"data_length", f.DataLength, "available", available)
	}
	end := shared.DATA_HEADER_SIZE + int(f.DataLength)
	f.BaseLayer = layers.BaseLayer{
		Contents: data[:shared.DATA_HEADER_SIZE],
		Payload:  data[shared.DATA_HEADER_SIZE:end],
	}
	return nil
}

// SerializeTo prepends the header. With FixLengths set, DataLength is taken
// from the bytes already in the buffer.
func (f *DataFrame) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	payloadLen := len(b.Bytes())
	buf, err := b.PrependBytes(shared.DATA_HEADER_SIZE)
	if err != nil {
		return err
	}
	if opts.FixLengths {
		f.DataLength = uint32(payloadLen)
	}
	binary.LittleEndian.PutUint64(buf[0:8], f.SessionID)
	binary.LittleEndian.PutUint64(buf[8:16], f.PacketIndex)
	binary.LittleEndian.PutUint32(buf[16:20], f.DataLength)
	return nil
}

func decodeDataFrame(data []byte, p gopacket.PacketBuilder) error {
	f := &DataFrame{}
	if err := f.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(f)
	return p.NextDecoder(f.NextLayerType())
}

// EncodeDataFrame serializes header and payload into a fresh datagram.
func EncodeDataFrame(sessionID, index uint64, payload []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	frame := &DataFrame{SessionID: sessionID, PacketIndex: index}
	if err := gopacket.SerializeLayers(buf, opts, frame, gopacket.Payload(payload)); err != nil {
		return nil, serrors.WrapStr("serializing data frame", err,
			"session", sessionID, "index", index)
	}
	return buf.Bytes(), nil
}

// DecodeDataFrame parses a datagram. The payload of the returned frame
// aliases raw.
func DecodeDataFrame(raw []byte) (*DataFrame, error) {
	f := &DataFrame{}
	if err := f.DecodeFromBytes(raw, gopacket.NilDecodeFeedback); err != nil {
		return nil, err
	}
	return f, nil
}
