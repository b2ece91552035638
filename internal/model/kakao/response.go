package kakao

import "unicode/utf8"

// Version is the only envelope version the platform accepts.
const Version = "2.0"

// Response 平台要求的固定响应结构。
type Response struct {
	Version     string   `json:"version"`
	UseCallback bool     `json:"useCallback,omitempty"`
	Template    Template `json:"template"`
}

// Template holds the rendered outputs.
type Template struct {
	Outputs []Output `json:"outputs"`
}

// Output is a single rendered item.
type Output struct {
	SimpleText SimpleText `json:"simpleText"`
}

// SimpleText is a plain text bubble.
type SimpleText struct {
	Text string `json:"text"`
}

// NewSimpleText builds the envelope with exactly one simpleText output.
func NewSimpleText(text string) Response {
	return Response{
		Version: Version,
		Template: Template{
			Outputs: []Output{{SimpleText: SimpleText{Text: text}}},
		},
	}
}

// NewCallbackAck builds the acknowledgement for a request whose answer will
// be delivered through the platform callback URL.
func NewCallbackAck(text string) Response {
	resp := NewSimpleText(text)
	resp.UseCallback = true
	return resp
}

// Text returns the text of the single output, empty if the shape is broken.
func (r Response) Text() string {
	if len(r.Template.Outputs) == 0 {
		return ""
	}
	return r.Template.Outputs[0].SimpleText.Text
}

// Truncate cuts text to at most limit runes without splitting a code point.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}
