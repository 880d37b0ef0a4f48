package pulseaudio

import (
	"fmt"

	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/dtln/pkg/audio/types"
)

var pulseFormats = map[types.PCMFormat]byte{
	types.PCMFormatU8:        proto.FormatUint8,
	types.PCMFormatS16LE:     proto.FormatInt16LE,
	types.PCMFormatS16BE:     proto.FormatInt16BE,
	types.PCMFormatS32LE:     proto.FormatInt32LE,
	types.PCMFormatS32BE:     proto.FormatInt32BE,
	types.PCMFormatFloat32LE: proto.FormatFloat32LE,
	types.PCMFormatFloat32BE: proto.FormatFloat32BE,
}

func pulseFormat(f types.PCMFormat) (byte, error) {
	pf, ok := pulseFormats[f]
	if !ok {
		return 0, fmt.Errorf("PCM format %s is not supported by Pulse", f)
	}
	return pf, nil
}

func channelMap(channels types.Channel) (proto.ChannelMap, error) {
	switch channels {
	case 1:
		return proto.ChannelMap{proto.ChannelMono}, nil
	case 2:
		return proto.ChannelMap{proto.ChannelLeft, proto.ChannelRight}, nil
	default:
		return nil, fmt.Errorf("do not know how to configure %d channels", channels)
	}
}
