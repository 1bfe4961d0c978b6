// Package preprocess turns image files into the fixed-size, normalized,
// channel-first tensors the classifier network consumes.
package preprocess

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/image-classifier/internal/model"
)

// Preprocessor decodes, resizes and normalizes images. It holds no
// per-call state and is safe for concurrent use.
type Preprocessor struct {
	Interpolation resize.InterpolationFunction
}

// New returns a Preprocessor that resamples bilinearly.
func New() *Preprocessor {
	return &Preprocessor{Interpolation: resize.Bilinear}
}

// File decodes the image at path and converts it into an input tensor.
func (p *Preprocessor) File(path string) (*model.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &model.ImageDecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, err := decode(f)
	if err != nil {
		return nil, &model.ImageDecodeError{Path: path, Err: err}
	}
	return p.Image(img), nil
}

// Reader is File for an already open stream.
func (p *Preprocessor) Reader(r io.Reader) (*model.Tensor, error) {
	img, err := decode(r)
	if err != nil {
		return nil, &model.ImageDecodeError{Err: err}
	}
	return p.Image(img), nil
}

// Image converts a decoded image into a [1,3,224,224] tensor. The image is
// stretched to the full grid without cropping or padding and every sample
// is scaled from 0..255 into [0,1].
func (p *Preprocessor) Image(img image.Image) *model.Tensor {
	resized := resize.Resize(model.ImageSize, model.ImageSize, opaqueRGB(img), p.Interpolation)

	t := model.NewInputTensor()
	fill(t.Data, resized)
	return t
}

func decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Empty() {
		return nil, fmt.Errorf("image has no pixels (%dx%d)", b.Dx(), b.Dy())
	}
	return img, nil
}

// opaqueRGB converts img to 8-bit RGB with the alpha channel dropped, so
// that transparent regions keep their stored colour instead of being
// premultiplied towards black.
func opaqueRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
			i += 4
		}
	}
	return dst
}

// fill writes img into data in CHW order: all red samples, then green,
// then blue.
func fill(data []float32, img image.Image) {
	const plane = model.ImageSize * model.ImageSize
	red := data[0:plane]
	green := data[plane : 2*plane]
	blue := data[2*plane : 3*plane]

	b := img.Bounds()
	i := 0
	for y := 0; y < model.ImageSize; y++ {
		for x := 0; x < model.ImageSize; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(bl>>8) / 255.0
			i++
		}
	}
}
