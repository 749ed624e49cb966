package kafka

import "github.com/twmb/franz-go/pkg/kmsg"

// APIKey identifies a Kafka request type. The numeric values are taken from
// kmsg's generated constant table so the proxy's notion of "ApiVersions",
// "Produce", "Fetch", and friends stays in lockstep with the wire protocol
// franz-go already knows how to speak.
type APIKey = int16

const (
	APIKeyProduce      APIKey = 0
	APIKeyFetch        APIKey = 1
	APIKeyMetadata     APIKey = 3
	APIKeySaslHandshake APIKey = 17
	APIKeyApiVersions  APIKey = 18
	APIKeySaslAuthenticate APIKey = 36
)

// ErrorCode mirrors the Kafka protocol error code space. kmsg ships the
// canonical names; we re-export the handful this proxy maps internal
// failures onto so callers don't need to import kmsg directly just to
// report an error.
type ErrorCode = int16

const (
	ErrNone                 ErrorCode = 0
	ErrCorruptMessage       ErrorCode = 2
	ErrUnknownServerError   ErrorCode = -1
	ErrInvalidRecord        ErrorCode = 87 // malformed encryption request, e.g. header encryption on a tombstone
	ErrRequestNotSatisfiable ErrorCode = 89 // mapped onto KMS/DEK exhaustion, see internal/encryption
	ErrSaslAuthenticationFailed ErrorCode = 58
)

// IsFlexible reports whether apiKey at apiVersion uses the flexible
// ("compact"/tagged-field) encoding, per KIP-482. kmsg's generated request
// structs each know their own flexible-version threshold; we only need the
// handful of API keys this proxy ever fully parses, so we keep a small table
// here rather than pulling in the full generated request surface.
func IsFlexible(apiKey APIKey, apiVersion int16) bool {
	switch apiKey {
	case APIKeyApiVersions:
		return apiVersion >= 3
	case APIKeyMetadata:
		return apiVersion >= 9
	case APIKeySaslHandshake:
		return false
	case APIKeySaslAuthenticate:
		return apiVersion >= 2
	case APIKeyProduce:
		return apiVersion >= 9
	case APIKeyFetch:
		return apiVersion >= 12
	default:
		return false
	}
}

// KmsgKey is a convenience re-export so callers that already hold a kmsg
// request/response can recover its Key() as an APIKey without a type
// conversion at every call site.
func KmsgKey(r kmsg.Request) APIKey { return r.Key() }
