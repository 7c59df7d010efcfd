package console

import (
	"github.com/danmuck/tcpconsole/internal/protocol/envelope"
	"github.com/danmuck/tcpconsole/internal/protocol/tlv"
)

// envelopeOverhead is the size of a typed envelope with an empty payload.
const envelopeOverhead = 2*tlv.HeaderLen + 2

// Command is either Typed or Text.
type Command interface {
	command()
}

// Typed is a frame that decoded as a service-tagged envelope.
type Typed struct {
	Service ServiceID
	Payload []byte
}

// Text is a frame that did not decode as a typed envelope. Raw holds the
// frame bytes verbatim.
type Text struct {
	Raw []byte
}

func (Typed) command() {}
func (Text) command()  {}

// Classify decodes frame as a typed envelope and falls back to Text on any
// decode failure. A Text result carries the frame bytes unchanged.
func Classify(frame []byte) Command {
	env, err := envelope.Decode(frame)
	if err != nil {
		return Text{Raw: frame}
	}
	return Typed{Service: ServiceID(env.Service), Payload: env.Payload}
}

// EncodeTyped builds the frame payload for a typed command.
func EncodeTyped(service ServiceID, payload []byte) ([]byte, error) {
	return envelope.Encode(envelope.Envelope{Service: uint16(service), Payload: payload})
}
