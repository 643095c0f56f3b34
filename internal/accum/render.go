package accum

// Frame renders the accumulated state into an 8-bit RGB image of
// width*height*3 bytes, row-major.
//
// Channel mapping: positive (polarity-up) contributions render green,
// negative contributions render red, blue stays zero.
//
// Modes:
//   - normalize=true: the whole accumulator scales by
//     255·brightness / max(1, globalMax) and truncates to 8-bit. The max(1,·)
//     floor makes an all-zero accumulator render all-zero instead of dividing
//     by zero.
//   - normalize=false: each value clips linearly to [0,255] after the
//     brightness multiplier, with no auto-scaling. Used by the comparison
//     mode, where consistent absolute brightness across frames matters more
//     than per-frame contrast.
//
// Frame is a pure read: calling it repeatedly without an intervening
// AddEvents or Reset returns bit-identical images.
func (a *Accumulator) Frame(normalize bool) []byte {
	out := make([]byte, a.width*a.height*3)

	scale := a.brightness
	if normalize {
		gmax := a.globalMax()
		if gmax < 1 {
			gmax = 1
		}
		scale = 255 * a.brightness / gmax
	}

	for i := range a.pos {
		out[i*3] = clip8(float64(a.neg[i]) * scale)   // R: negative polarity
		out[i*3+1] = clip8(float64(a.pos[i]) * scale) // G: positive polarity
	}
	return out
}

// globalMax returns the largest accumulated value across both channels.
func (a *Accumulator) globalMax() float64 {
	var gmax float32
	for i := range a.pos {
		if a.pos[i] > gmax {
			gmax = a.pos[i]
		}
		if a.neg[i] > gmax {
			gmax = a.neg[i]
		}
	}
	return float64(gmax)
}

func clip8(v float64) byte {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v)
}
