package cifar

import "math/rand"

// Per-channel normalization constants (RGB) applied after scaling to [0, 1].
var (
	Mean = [Channels]float32{0.4914, 0.4822, 0.4465}
	Std  = [Channels]float32{0.2023, 0.1994, 0.2010}
)

// CropPadding is the zero padding applied on each side before random cropping.
const CropPadding = 4

// Crop describes one random augmentation draw.
type Crop struct {
	Flip bool
	Top  int // row offset into the padded image, in [0, 2*CropPadding]
	Left int // column offset into the padded image, in [0, 2*CropPadding]
}

// Identity is the crop that reproduces the original image.
var Identity = Crop{Top: CropPadding, Left: CropPadding}

// RandomCrop draws a crop offset and a horizontal flip with probability 0.5.
func RandomCrop(rng *rand.Rand) Crop {
	return Crop{
		Flip: rng.Intn(2) == 1,
		Top:  rng.Intn(2*CropPadding + 1),
		Left: rng.Intn(2*CropPadding + 1),
	}
}

// Normalize writes the normalized float32 version of one raw image into dst.
func Normalize(dst []float32, src []byte) {
	for c := 0; c < Channels; c++ {
		mean, std := Mean[c], Std[c]
		plane := src[c*PlaneBytes : (c+1)*PlaneBytes]
		out := dst[c*PlaneBytes : (c+1)*PlaneBytes]
		for i, v := range plane {
			out[i] = (float32(v)/255 - mean) / std
		}
	}
}

// Augment pads src with zeros, optionally mirrors it, crops a 32x32 window and
// normalizes the result into dst. Padded pixels are zero before normalization.
func Augment(dst []float32, src []byte, crop Crop) {
	const padded = ImageSize + 2*CropPadding
	for c := 0; c < Channels; c++ {
		mean, std := Mean[c], Std[c]
		zero := -mean / std
		plane := src[c*PlaneBytes : (c+1)*PlaneBytes]
		out := dst[c*PlaneBytes : (c+1)*PlaneBytes]
		for y := 0; y < ImageSize; y++ {
			sy := y + crop.Top - CropPadding
			for x := 0; x < ImageSize; x++ {
				px := x + crop.Left
				if crop.Flip {
					px = padded - 1 - px
				}
				sx := px - CropPadding
				if sy < 0 || sy >= ImageSize || sx < 0 || sx >= ImageSize {
					out[y*ImageSize+x] = zero
					continue
				}
				out[y*ImageSize+x] = (float32(plane[sy*ImageSize+sx])/255 - mean) / std
			}
		}
	}
}
