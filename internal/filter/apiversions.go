package filter

import (
	"context"

	"github.com/edgekafka/edgekafka/internal/kafka"
)

// supportedRange is the [min,max] version this proxy can speak for one API
// key — i.e. the range its own kafka package has a codec for. Any version
// outside these bounds is passed through opaquely and never intersected.
var supportedRange = map[kafka.APIKey][2]int16{
	kafka.APIKeyProduce:          {0, 9},
	kafka.APIKeyFetch:            {0, 12},
	kafka.APIKeyMetadata:         {0, 9},
	kafka.APIKeyApiVersions:      {0, 3},
	kafka.APIKeySaslHandshake:    {0, 1},
	kafka.APIKeySaslAuthenticate: {0, 2},
}

// APIVersionsFilter answers ApiVersions requests itself, without a round
// trip to the upstream broker. For each key in UpstreamRanges it reports
// the upstream range intersected with what this proxy can actually decode
// (supportedRange), dropping keys with no overlap; keys this proxy has no
// codec for are reported at the upstream range unchanged. The request body
// is not consulted.
type APIVersionsFilter struct {
	// UpstreamRanges holds the broker's advertised [min,max] per API key;
	// the short-circuit response lists exactly these keys. Nothing in this
	// repository fills it from a live ApiVersions exchange: cmd/edgekafkad
	// installs an empty map, so that response lists no keys.
	UpstreamRanges map[kafka.APIKey][2]int16
}

func (f *APIVersionsFilter) Name() string { return "builtin.apiversions" }

func (f *APIVersionsFilter) APIKeys() []kafka.APIKey { return []kafka.APIKey{kafka.APIKeyApiVersions} }

func (f *APIVersionsFilter) OnRequest(ctx context.Context, req *kafka.Request) (FilterResult, error) {
	avReq, ok := req.Body.(kafka.ApiVersionsRequest)
	_ = avReq
	if !ok {
		return FilterResult{}, nil
	}

	keys := make([]kafka.ApiVersionsResponseKey, 0, len(f.UpstreamRanges))
	for key, upstream := range f.UpstreamRanges {
		lo, hi := upstream[0], upstream[1]
		if sup, ok := supportedRange[key]; ok {
			var ok2 bool
			lo, hi, ok2 = kafka.Intersect(upstream[0], upstream[1], sup[0], sup[1])
			if !ok2 {
				continue // no overlap: this proxy and the broker can't agree, drop the key
			}
		}
		keys = append(keys, kafka.ApiVersionsResponseKey{APIKey: key, MinVersion: lo, MaxVersion: hi})
	}

	resp := &kafka.Response{
		Header: kafka.ResponseHeader{
			CorrelationID: req.Header.CorrelationID,
			HeaderVersion: kafka.ResponseHeaderVersionFor(kafka.APIKeyApiVersions, req.Header.APIVersion),
		},
		HeaderVersion: kafka.ResponseHeaderVersionFor(kafka.APIKeyApiVersions, req.Header.APIVersion),
		Body: kafka.ApiVersionsResponse{
			ErrorCode: kafka.ErrNone,
			APIKeys:   keys,
		},
	}
	return FilterResult{ShortCircuit: resp}, nil
}
