// Package record builds the before/after summary attached to every
// transformation result.
package record

import (
	"github.com/Thangam2001/Utility-App/internal/media"
)

// Kind names the operation that produced a result.
type Kind string

const (
	KindResize   Kind = "resize"
	KindCrop     Kind = "crop"
	KindConvert  Kind = "convert"
	KindCompress Kind = "compress"
	KindOCR      Kind = "ocr"
)

// Record describes one transformation.
type Record struct {
	Operation Kind                   `json:"operation" yaml:"operation"`
	Original  media.Descriptor       `json:"original" yaml:"original"`
	Result    media.Descriptor       `json:"result" yaml:"result"`
	Params    map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

// Build assembles a Record. params is copied so later changes by the caller
// do not leak into the record.
func Build(original, result media.Descriptor, kind Kind, params map[string]interface{}) Record {
	var copied map[string]interface{}
	if len(params) > 0 {
		copied = make(map[string]interface{}, len(params))
		for k, v := range params {
			copied[k] = v
		}
	}
	return Record{
		Operation: kind,
		Original:  original,
		Result:    result,
		Params:    copied,
	}
}

// SizeDelta is the change in encoded size, negative when the result shrank.
func (r Record) SizeDelta() int {
	return r.Result.Size - r.Original.Size
}
