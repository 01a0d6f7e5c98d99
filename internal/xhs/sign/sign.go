// internal/xhs/sign/sign.go
package sign

import (
	"encoding/base64"
	"hash/crc32"
	"math/big"
	"math/rand"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// The platform decodes x-s-common with a permuted base64 alphabet. The
// permutation below must match it byte for byte; any deviation invalidates
// every signed request.
const customAlphabet = "ZmserbBoHQtNP+wOcza/LpngG8yJq42KWYj0DSfdikx3VT16IlUAFM97hECvuRX5"

var customEncoding = base64.NewEncoding(customAlphabet)

// Headers is the set of signed headers attached verbatim to one API call.
// They are never reused across requests.
type Headers struct {
	XS         string
	XT         string
	XSCommon   string
	XB3TraceID string
}

// common is the signing record: platform/version constants plus the four
// session-derived tokens. Field order matters, it is the serialization order
// the platform expects.
type common struct {
	S0  int    `json:"s0"`
	S1  string `json:"s1"`
	X0  string `json:"x0"`
	X1  string `json:"x1"`
	X2  string `json:"x2"`
	X3  string `json:"x3"`
	X4  string `json:"x4"`
	X5  string `json:"x5"`
	X6  string `json:"x6"`
	X7  string `json:"x7"`
	X8  string `json:"x8"`
	X9  uint32 `json:"x9"`
	X10 int    `json:"x10"`
}

// Sign produces the signed headers for one request.
//
// a1 is the identity cookie value, b1 the localStorage token, and xs/xt the
// two opaque values the page script returned for this exact URL+body. The
// function is pure: absent inputs are treated as empty strings.
func Sign(a1, b1, xs, xt string) Headers {
	record := common{
		S0:  3,
		S1:  "",
		X0:  "1",
		X1:  "3.7.8-2",
		X2:  "Mac OS",
		X3:  "xhs-pc-web",
		X4:  "4.27.2",
		X5:  a1,
		X6:  xt,
		X7:  xs,
		X8:  b1,
		X9:  Checksum(xt + xs + b1),
		X10: 154,
	}

	// jsoniter emits fields in declaration order with no whitespace, which
	// matches the platform's canonical serialization of the record.
	payload, _ := json.Marshal(record)

	return Headers{
		XS:         xs,
		XT:         xt,
		XSCommon:   EncodeCustomBase64(payload),
		XB3TraceID: TraceID(),
	}
}

// Checksum computes the CRC-32 (IEEE polynomial) the platform folds into the
// signing record as x9.
func Checksum(s string) uint32 {
	return crc32.ChecksumIEEE([]byte(s))
}

// EncodeCustomBase64 encodes bytes with the platform's permuted alphabet and
// standard '=' padding.
func EncodeCustomBase64(b []byte) string {
	return customEncoding.EncodeToString(b)
}

// DecodeCustomBase64 is the inverse of EncodeCustomBase64. Only used by tests
// and diagnostics; the platform never sends us this encoding.
func DecodeCustomBase64(s string) ([]byte, error) {
	return customEncoding.DecodeString(s)
}

const traceIDChars = "abcdef0123456789"

// TraceID returns a random 16-character hex trace identifier. It only needs
// low collision probability within one process run, not cryptographic
// strength.
func TraceID() string {
	var sb strings.Builder
	sb.Grow(16)
	for i := 0; i < 16; i++ {
		sb.WriteByte(traceIDChars[rand.Intn(len(traceIDChars))])
	}
	return sb.String()
}

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// SearchID generates the search_id parameter for keyword searches:
// a base36 rendering of (microsecond timestamp << 32) + random.
func SearchID() string {
	ts := big.NewInt(time.Now().UnixMicro())
	combined := new(big.Int).Lsh(ts, 32)
	combined.Add(combined, big.NewInt(rand.Int63n(2147483646)))
	return strings.ToUpper(combined.Text(36))
}
