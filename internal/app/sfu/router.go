package sfu

import (
	"fmt"
	"slices"

	"github.com/dkeye/callhub/internal/domain"
	"github.com/pion/webrtc/v4"
)

// DefaultCodecs is what every router negotiates.
var DefaultCodecs = []Codec{
	{
		Kind: webrtc.RTPCodecTypeAudio,
		Params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeOpus,
				ClockRate:   48000,
				Channels:    2,
				SDPFmtpLine: "minptime=10;useinbandfec=1",
			},
			PayloadType: 111,
		},
	},
	{
		Kind: webrtc.RTPCodecTypeVideo,
		Params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			PayloadType:        96,
		},
	},
	{
		Kind: webrtc.RTPCodecTypeVideo,
		Params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeH264,
				ClockRate:   90000,
				SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
			},
			PayloadType: 102,
		},
	},
}

type Codec struct {
	Kind   webrtc.RTPCodecType
	Params webrtc.RTPCodecParameters
}

// Router is the per-group media context. Every transport of the group is
// created through its API so they share one codec set.
type Router struct {
	GroupID domain.GroupID
	api     *webrtc.API
	codecs  []webrtc.RTPCodecParameters
}

func NewRouter(gid domain.GroupID, codecs []Codec) (*Router, error) {
	m := &webrtc.MediaEngine{}
	params := make([]webrtc.RTPCodecParameters, 0, len(codecs))
	for _, c := range codecs {
		if err := m.RegisterCodec(c.Params, c.Kind); err != nil {
			return nil, fmt.Errorf("register %s: %w", c.Params.MimeType, err)
		}
		params = append(params, c.Params)
	}
	return &Router{
		GroupID: gid,
		api:     webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		codecs:  params,
	}, nil
}

// Capabilities returns a copy of the router's codec list.
func (r *Router) Capabilities() []webrtc.RTPCodecParameters {
	return slices.Clone(r.codecs)
}
