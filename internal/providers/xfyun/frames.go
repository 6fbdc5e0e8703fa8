package xfyun

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"iatbridge/internal/domain"
	"iatbridge/internal/errorsx"
)

const (
	statusFirstFrame    = 0
	statusContinueFrame = 1
	statusLastFrame     = 2
)

type outboundFrame struct {
	Common   *commonSection   `json:"common,omitempty"`
	Business *businessSection `json:"business,omitempty"`
	Data     dataSection      `json:"data"`
}

type commonSection struct {
	AppID string `json:"app_id"`
}

type businessSection struct {
	Language string `json:"language"`
	Domain   string `json:"domain"`
	Accent   string `json:"accent"`
	DWA      string `json:"dwa,omitempty"`
}

type dataSection struct {
	Status   int    `json:"status"`
	Format   string `json:"format"`
	Audio    string `json:"audio"`
	Encoding string `json:"encoding"`
}

// EncodeFrame wraps one audio chunk. Only the first frame carries session parameters.
func (p *Protocol) EncodeFrame(state domain.FrameState, payload []byte) ([]byte, error) {
	frame := outboundFrame{
		Data: dataSection{
			Format:   p.audioFormat(),
			Audio:    base64.StdEncoding.EncodeToString(payload),
			Encoding: p.cfg.Encoding,
		},
	}

	switch state {
	case domain.FrameFirst:
		frame.Data.Status = statusFirstFrame
		frame.Common = &commonSection{AppID: p.cfg.AppID}
		frame.Business = &businessSection{
			Language: p.cfg.Language,
			Domain:   p.cfg.Domain,
			Accent:   p.cfg.Accent,
		}
		if p.cfg.DynamicCorrection {
			frame.Business.DWA = "wpgs"
		}
	case domain.FrameContinue:
		frame.Data.Status = statusContinueFrame
	case domain.FrameLast:
		frame.Data.Status = statusLastFrame
	default:
		return nil, errorsx.Wrap(fmt.Errorf("unknown frame state %d", state), errorsx.ReasonEncode)
	}

	encoded, err := json.Marshal(frame)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("encode %s frame: %w", state, err), errorsx.ReasonEncode)
	}
	return encoded, nil
}

func (p *Protocol) audioFormat() string {
	return "audio/L16;rate=" + strconv.Itoa(p.cfg.SampleRate)
}
