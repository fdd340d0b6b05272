package media

// Descriptor summarizes an encoded buffer. It is always computed from the
// buffer it describes.
type Descriptor struct {
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	Format Format `json:"format" yaml:"format"`
	Size   int    `json:"size" yaml:"size"`
	Pages  int    `json:"pages,omitempty" yaml:"pages,omitempty"`
}
