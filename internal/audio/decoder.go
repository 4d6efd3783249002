package audio

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// Decoder turns an encoded stream into PCM for the native backend.
type Decoder interface {
	Name() string
	Extensions() []string
	Decode(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)
}

var registry []Decoder

// Register adds a decoder to the registry.
func Register(d Decoder) {
	registry = append(registry, d)
}

// DecoderFor returns the decoder registered for the extension of name.
func DecoderFor(name string) (Decoder, error) {
	ext := strings.ToLower(filepath.Ext(name))
	for _, d := range registry {
		for _, e := range d.Extensions() {
			if ext == e {
				return d, nil
			}
		}
	}
	return nil, ErrUnsupportedFormat
}

// SupportedFormats returns registered decoder names with their extensions.
func SupportedFormats() []string {
	var out []string
	for _, d := range registry {
		out = append(out, d.Name()+" ("+strings.Join(d.Extensions(), ", ")+")")
	}
	return out
}

type mp3Decoder struct{}
type wavDecoder struct{}
type flacDecoder struct{}

func init() {
	Register(mp3Decoder{})
	Register(wavDecoder{})
	Register(flacDecoder{})
}

func (mp3Decoder) Name() string         { return "MP3" }
func (mp3Decoder) Extensions() []string { return []string{".mp3"} }
func (mp3Decoder) Decode(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	return mp3.Decode(rc)
}

func (wavDecoder) Name() string         { return "WAV" }
func (wavDecoder) Extensions() []string { return []string{".wav"} }
func (wavDecoder) Decode(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	s, f, err := wav.Decode(rc)
	if err != nil {
		return nil, f, err
	}
	return closeBoth{s, rc}, f, nil
}

func (flacDecoder) Name() string         { return "FLAC" }
func (flacDecoder) Extensions() []string { return []string{".flac"} }
func (flacDecoder) Decode(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	s, f, err := flac.Decode(rc)
	if err != nil {
		return nil, f, err
	}
	return closeBoth{s, rc}, f, nil
}

// closeBoth closes the decoder and the source it reads from.
type closeBoth struct {
	beep.StreamSeekCloser
	src io.Closer
}

func (c closeBoth) Close() error {
	err := c.StreamSeekCloser.Close()
	c.src.Close()
	return err
}
