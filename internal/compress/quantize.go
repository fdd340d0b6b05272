package compress

import (
	"image"
	"image/color"
	"sort"
)

// maxSamples bounds the number of pixels fed into the histogram.
const maxSamples = 1 << 18

// medianCut is a draw.Quantizer that splits the color space at the weighted
// median of the widest channel until the palette is full.
type medianCut struct{}

type colorCount struct {
	c [4]uint8
	n int
}

type colorBox struct {
	colors []colorCount
}

func (medianCut) Quantize(p color.Palette, m image.Image) color.Palette {
	want := cap(p) - len(p)
	if want <= 0 {
		return p
	}

	boxes := []colorBox{{colors: histogram(m)}}
	for len(boxes) < want {
		i := widestBox(boxes)
		if i < 0 {
			break
		}
		a, b := boxes[i].split()
		boxes[i] = a
		boxes = append(boxes, b)
	}

	for _, box := range boxes {
		if len(box.colors) > 0 {
			p = append(p, box.average())
		}
	}
	return p
}

func histogram(m image.Image) []colorCount {
	b := m.Bounds()
	step := 1
	for (b.Dx()/step)*(b.Dy()/step) > maxSamples {
		step++
	}

	counts := make(map[[4]uint8]int)
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			c := color.NRGBAModel.Convert(m.At(x, y)).(color.NRGBA)
			counts[[4]uint8{c.R, c.G, c.B, c.A}]++
		}
	}

	out := make([]colorCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, colorCount{c: c, n: n})
	}
	// map order is random; sort so identical frames get identical palettes
	sort.Slice(out, func(i, j int) bool { return packed(out[i].c) < packed(out[j].c) })
	return out
}

// widestBox returns the index of the splittable box with the largest channel
// range, or -1 when every box holds a single color.
func widestBox(boxes []colorBox) int {
	best, bestRange := -1, -1
	for i, box := range boxes {
		if len(box.colors) < 2 {
			continue
		}
		_, r := box.widestChannel()
		if r > bestRange {
			best, bestRange = i, r
		}
	}
	return best
}

func (b colorBox) widestChannel() (int, int) {
	lo := [4]uint8{255, 255, 255, 255}
	var hi [4]uint8
	for _, cc := range b.colors {
		for ch := 0; ch < 4; ch++ {
			lo[ch] = min(lo[ch], cc.c[ch])
			hi[ch] = max(hi[ch], cc.c[ch])
		}
	}
	channel, width := 0, -1
	for ch := 0; ch < 4; ch++ {
		if r := int(hi[ch]) - int(lo[ch]); r > width {
			channel, width = ch, r
		}
	}
	return channel, width
}

func (b colorBox) split() (colorBox, colorBox) {
	ch, _ := b.widestChannel()
	sort.SliceStable(b.colors, func(i, j int) bool { return b.colors[i].c[ch] < b.colors[j].c[ch] })

	total := 0
	for _, cc := range b.colors {
		total += cc.n
	}
	acc, cut := 0, 1
	for i, cc := range b.colors[:len(b.colors)-1] {
		acc += cc.n
		if acc*2 >= total {
			cut = i + 1
			break
		}
		cut = i + 1
	}
	return colorBox{colors: b.colors[:cut]}, colorBox{colors: b.colors[cut:]}
}

func (b colorBox) average() color.Color {
	var sum [4]int
	total := 0
	for _, cc := range b.colors {
		for ch := 0; ch < 4; ch++ {
			sum[ch] += int(cc.c[ch]) * cc.n
		}
		total += cc.n
	}
	return color.NRGBA{
		R: uint8((sum[0] + total/2) / total),
		G: uint8((sum[1] + total/2) / total),
		B: uint8((sum[2] + total/2) / total),
		A: uint8((sum[3] + total/2) / total),
	}
}

func packed(c [4]uint8) uint32 {
	return uint32(c[0])<<24 | uint32(c[1])<<16 | uint32(c[2])<<8 | uint32(c[3])
}
