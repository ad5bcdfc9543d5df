package bridge

import (
	"github.com/golang/protobuf/proto"
)

// Envelope carries one frame across the bridge.
// Outbound envelopes only need Type (or the topic suffix) and Data.
type Envelope struct {
	Type string `protobuf:"bytes,1,opt,name=type,proto3" json:"type,omitempty"`
	Code uint32 `protobuf:"varint,2,opt,name=code,proto3" json:"code,omitempty"`
	Data []byte `protobuf:"bytes,3,opt,name=data,proto3" json:"data,omitempty"`
	// Time is the receiving time in unix nanoseconds.
	Time int64 `protobuf:"varint,4,opt,name=time,proto3" json:"time,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Envelope) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Envelope) Reset() { *m = Envelope{} }

// String implements proto.Message.
func (m *Envelope) String() string { return proto.CompactTextString(m) }

// Encode encodes the envelope.
func (m *Envelope) Encode() ([]byte, error) {
	return proto.Marshal(m)
}

// UnmarshalEnvelope decodes an envelope. Empty data decodes to an empty
// envelope.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	m := &Envelope{}
	if err := proto.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}
