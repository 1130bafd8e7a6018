package preprocess_test

import (
	"image"
	"image/color"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ocrai/ocrai/internal/preprocess"
	"github.com/ocrai/ocrai/pkg/logger"
)

func uniformGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// textPage draws horizontal black bars on a white background, a crude
// stand-in for lines of print.
func textPage(w, h int) *image.Gray {
	img := uniformGray(w, h, 255)
	for y := 60; y < h-60; y += 40 {
		for dy := 0; dy < 6; dy++ {
			for x := 50; x < w-50; x++ {
				img.SetGray(x, y+dy, color.Gray{Y: 0})
			}
		}
	}
	return img
}

var _ = Describe("Preprocess", func() {
	Describe("Grayscale", func() {
		It("preserves dimensions", func() {
			src := image.NewRGBA(image.Rect(0, 0, 20, 30))
			gray := preprocess.Grayscale(src)
			Expect(gray.Bounds().Dx()).To(Equal(20))
			Expect(gray.Bounds().Dy()).To(Equal(30))
		})
	})

	Describe("OtsuThreshold", func() {
		It("separates a bimodal histogram", func() {
			img := image.NewGray(image.Rect(0, 0, 10, 10))
			for y := 0; y < 10; y++ {
				for x := 0; x < 10; x++ {
					v := uint8(50)
					if y >= 5 {
						v = 200
					}
					img.SetGray(x, y, color.Gray{Y: v})
				}
			}

			threshold := preprocess.OtsuThreshold(img)
			Expect(threshold).To(BeNumerically(">=", 50))
			Expect(threshold).To(BeNumerically("<", 200))
		})
	})

	Describe("Binarize", func() {
		It("produces only pure black and white", func() {
			img := image.NewGray(image.Rect(0, 0, 16, 16))
			for i := range img.Pix {
				img.Pix[i] = uint8(i % 256)
			}

			bw := preprocess.Binarize(img)
			for _, v := range bw.Pix {
				Expect(v == 0 || v == 255).To(BeTrue())
			}
		})
	})

	Describe("ApplyGamma", func() {
		DescribeTable("brightens midtones for gamma > 1",
			func(in uint8) {
				img := uniformGray(4, 4, in)
				out := preprocess.ApplyGamma(img, 1.2)
				Expect(out.GrayAt(0, 0).Y).To(BeNumerically(">=", in))
			},
			Entry("dark", uint8(40)),
			Entry("mid", uint8(128)),
			Entry("light", uint8(220)),
		)

		It("leaves pure black and white alone", func() {
			black := preprocess.ApplyGamma(uniformGray(2, 2, 0), 1.2)
			white := preprocess.ApplyGamma(uniformGray(2, 2, 255), 1.2)
			Expect(black.GrayAt(0, 0).Y).To(Equal(uint8(0)))
			Expect(white.GrayAt(0, 0).Y).To(Equal(uint8(255)))
		})
	})

	Describe("Denoise", func() {
		It("removes isolated specks", func() {
			img := uniformGray(9, 9, 255)
			img.SetGray(4, 4, color.Gray{Y: 0})

			out := preprocess.Denoise(img)
			Expect(out.GrayAt(4, 4).Y).To(Equal(uint8(255)))
		})

		It("keeps solid regions", func() {
			img := uniformGray(9, 9, 0)
			out := preprocess.Denoise(img)
			Expect(out.GrayAt(4, 4).Y).To(Equal(uint8(0)))
		})
	})

	Describe("CropBorders", func() {
		It("trims white margin down to content plus padding", func() {
			img := uniformGray(100, 100, 255)
			for y := 40; y < 60; y++ {
				for x := 30; x < 70; x++ {
					img.SetGray(x, y, color.Gray{Y: 0})
				}
			}

			out := preprocess.CropBorders(img, 10)
			Expect(out.Bounds().Dx()).To(Equal(60)) // 40 content + 2*10 pad
			Expect(out.Bounds().Dy()).To(Equal(40))
		})

		It("returns an all-white image unchanged", func() {
			img := uniformGray(50, 50, 255)
			out := preprocess.CropBorders(img, 10)
			Expect(out.Bounds().Dx()).To(Equal(50))
			Expect(out.Bounds().Dy()).To(Equal(50))
		})
	})

	Describe("DetectSkewAngle", func() {
		It("reports no skew for straight lines", func() {
			angle := preprocess.DetectSkewAngle(textPage(400, 400))
			Expect(math.Abs(angle)).To(BeNumerically("<=", 0.5))
		})

		It("recovers an introduced rotation", func() {
			rotated := preprocess.Rotate(textPage(400, 400), 3)
			angle := preprocess.DetectSkewAngle(rotated)
			Expect(angle).To(BeNumerically("~", 3.0, 0.75))
		})

		It("returns zero for a blank page", func() {
			Expect(preprocess.DetectSkewAngle(uniformGray(200, 200, 255))).To(BeZero())
		})
	})

	Describe("Process", func() {
		It("runs the full pipeline deterministically", func() {
			log := logger.New(logger.WithOutput(GinkgoWriter), logger.WithPrefix("[preprocess-test] "))
			p := preprocess.New(log)

			src := image.NewRGBA(image.Rect(0, 0, 400, 400))
			page := textPage(400, 400)
			for y := 0; y < 400; y++ {
				for x := 0; x < 400; x++ {
					v := page.GrayAt(x, y).Y
					src.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
				}
			}

			first := p.Process(src)
			second := p.Process(src)

			Expect(first.Pix).To(Equal(second.Pix))
			Expect(first.Bounds().Dx()).To(BeNumerically("<=", 400))
			Expect(first.Bounds().Dy()).To(BeNumerically("<=", 400))
		})
	})
})
