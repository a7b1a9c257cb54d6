package transport

import (
	"strconv"
	"time"

	"github.com/tidwall/sjson"
)

// Response kinds.
const (
	KindGameState   = "gameState"
	KindDialogue    = "dialogue"
	KindSceneUpdate = "sceneUpdate"
	KindError       = "error"
	KindWelcome     = "welcome"
)

var timeNow = time.Now

// Response builds a {type, timestamp, data} envelope. The first failed Set
// is kept and returned by Bytes.
type Response struct {
	raw []byte
	err error
}

// NewResponse starts an envelope of the given kind.
func NewResponse(kind string) *Response {
	r := &Response{raw: []byte(`{}`)}
	r.set("type", kind)
	r.set("timestamp", strconv.FormatInt(timeNow().Unix(), 10))
	r.raw, r.err = sjson.SetRawBytes(r.raw, "data", []byte(`{}`))
	return r
}

// Set stores v at data.<path> using sjson path syntax.
func (r *Response) Set(path string, v any) *Response {
	r.set("data."+path, v)
	return r
}

// SetRaw stores pre-encoded JSON at data.<path>.
func (r *Response) SetRaw(path string, raw []byte) *Response {
	if r.err != nil {
		return r
	}
	r.raw, r.err = sjson.SetRawBytes(r.raw, "data."+path, raw)
	return r
}

// Bytes returns the encoded envelope.
func (r *Response) Bytes() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.raw, nil
}

// JSON returns the encoded envelope, or an error envelope if building failed.
func (r *Response) JSON() []byte {
	b, err := r.Bytes()
	if err != nil {
		return ErrorResponse(err.Error(), 0)
	}
	return b
}

func (r *Response) set(path string, v any) {
	if r.err != nil {
		return
	}
	r.raw, r.err = sjson.SetBytes(r.raw, path, v)
}

// DialogueOption is one selectable line in a dialogue response.
type DialogueOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// DialogueResponse builds a dialogue envelope.
func DialogueResponse(speaker, text string, options []DialogueOption) []byte {
	if options == nil {
		options = []DialogueOption{}
	}
	return NewResponse(KindDialogue).
		Set("speaker", speaker).
		Set("text", text).
		Set("options", options).
		JSON()
}

// SceneUpdateResponse builds a sceneUpdate envelope.
func SceneUpdateResponse(location, description string) []byte {
	return NewResponse(KindSceneUpdate).
		Set("location", location).
		Set("description", description).
		JSON()
}

// ErrorResponse builds an error envelope. It never fails.
func ErrorResponse(message string, code int) []byte {
	raw, _ := sjson.SetBytes([]byte(`{"type":"error"}`), "timestamp", strconv.FormatInt(timeNow().Unix(), 10))
	raw, _ = sjson.SetBytes(raw, "data.message", message)
	raw, _ = sjson.SetBytes(raw, "data.code", code)
	return raw
}
