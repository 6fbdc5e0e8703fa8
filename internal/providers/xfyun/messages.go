package xfyun

import (
	"encoding/json"
	"fmt"

	"iatbridge/internal/domain"
	"iatbridge/internal/errorsx"
)

type inboundMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	SID     string `json:"sid"`
	Data    *struct {
		Status int           `json:"status"`
		Result *inboundResult `json:"result"`
	} `json:"data"`
}

type inboundResult struct {
	SN  int    `json:"sn"`
	Pgs string `json:"pgs"`
	Rg  []int  `json:"rg"`
	WS  []struct {
		CW []struct {
			W string `json:"w"`
		} `json:"cw"`
	} `json:"ws"`
}

// DecodeMessage parses one server response.
func (p *Protocol) DecodeMessage(payload []byte) (domain.InboundMessage, error) {
	var raw inboundMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return domain.InboundMessage{}, errorsx.Wrap(fmt.Errorf("decode xfyun message: %w", err), errorsx.ReasonProtocol)
	}

	msg := domain.InboundMessage{
		Code:    raw.Code,
		Message: raw.Message,
		SID:     raw.SID,
	}
	if raw.Data == nil {
		return msg, nil
	}
	msg.Final = raw.Data.Status == statusLastFrame
	if raw.Data.Result != nil {
		msg.Result = toPartialResult(raw.Data.Result)
	}
	return msg, nil
}

func toPartialResult(r *inboundResult) *domain.PartialResult {
	words := make([]string, 0, len(r.WS))
	for _, segment := range r.WS {
		for _, candidate := range segment.CW {
			words = append(words, candidate.W)
		}
	}
	result := &domain.PartialResult{
		Seq:     r.SN,
		Replace: r.Pgs == "rpl",
		Words:   words,
	}
	if result.Replace {
		result.Invalidate = append([]int(nil), r.Rg...)
	}
	return result
}
