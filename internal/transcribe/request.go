package transcribe

import (
	"errors"
	"fmt"
	"strings"
)

// Encoding is the audio encoding of the referenced file.
type Encoding string

const (
	EncodingLinear16 Encoding = "LINEAR16" // raw 16-bit signed little-endian samples
	EncodingFLAC     Encoding = "FLAC"
	EncodingMulaw    Encoding = "MULAW"
	EncodingAMR      Encoding = "AMR"
	EncodingAMRWB    Encoding = "AMR_WB"
)

// Encodings lists every accepted encoding in display order.
var Encodings = []Encoding{
	EncodingLinear16,
	EncodingFLAC,
	EncodingMulaw,
	EncodingAMR,
	EncodingAMRWB,
}

// Defaults used by the CLI when a flag is not given.
const (
	DefaultEncoding     = EncodingLinear16
	DefaultSampleRate   = 44100
	DefaultLanguageCode = "ja_JP"
)

const gcsScheme = "gs://"

var (
	ErrInvalidURI      = errors.New("Cloud Storage uri must be of the form gs://bucket/path/")
	ErrInvalidEncoding = errors.New("invalid encoding")
)

// ValidateURI rejects anything that is not a Cloud Storage URI.
func ValidateURI(uri string) error {
	if !strings.HasPrefix(uri, gcsScheme) {
		return fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return nil
}

// ParseEncoding returns the Encoding named by s. Matching is exact.
func ParseEncoding(s string) (Encoding, error) {
	for _, e := range Encodings {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w %q (choose from %s)", ErrInvalidEncoding, s, encodingList())
}

func encodingList() string {
	names := make([]string, len(Encodings))
	for i, e := range Encodings {
		names[i] = string(e)
	}
	return strings.Join(names, ", ")
}

// RecognitionConfig describes how the remote service should decode the audio.
type RecognitionConfig struct {
	Encoding     Encoding `json:"encoding"`
	SampleRate   int      `json:"sampleRate"`
	LanguageCode string   `json:"languageCode"` // BCP-47 tag
}

// RecognitionAudio points at the audio to transcribe.
type RecognitionAudio struct {
	URI string `json:"uri"`
}

// RecognizeRequest is the asyncrecognize request body.
type RecognizeRequest struct {
	Config RecognitionConfig `json:"config"`
	Audio  RecognitionAudio  `json:"audio"`
}

// NewRecognizeRequest builds a request body from the four user-supplied
// parameters. Values are passed through as given.
func NewRecognizeRequest(uri string, enc Encoding, sampleRate int, languageCode string) RecognizeRequest {
	return RecognizeRequest{
		Config: RecognitionConfig{
			Encoding:     enc,
			SampleRate:   sampleRate,
			LanguageCode: languageCode,
		},
		Audio: RecognitionAudio{URI: uri},
	}
}
