// Package preprocess cleans up rasterized page scans before they are
// sent for transcription. The stages run in a fixed order: grayscale,
// deskew, gamma correction, denoise, binarization, border crop. All of
// them are pure pixel work with no I/O.
package preprocess

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ocrai/ocrai/pkg/logger"
)

const (
	defaultGamma = 1.2

	// Skew search window. Scanned textbook pages are rarely off by
	// more than a few degrees.
	maxSkewDegrees  = 5.0
	skewStepDegrees = 0.25

	// Angles below this are noise from the estimator, not real skew.
	minCorrectableSkew = 0.1

	cropPadding = 10
)

type Preprocessor struct {
	logger *logger.Logger
}

func New(log *logger.Logger) *Preprocessor {
	return &Preprocessor{logger: log}
}

// Process runs the full cleanup pipeline on a page scan.
func (p *Preprocessor) Process(src image.Image) *image.Gray {
	gray := Grayscale(src)

	angle := DetectSkewAngle(gray)
	if math.Abs(angle) >= minCorrectableSkew {
		p.logger.Debug("Correcting skew of %.2f degrees", angle)
		gray = Rotate(gray, -angle)
	}

	gray = ApplyGamma(gray, defaultGamma)
	gray = Denoise(gray)
	gray = Binarize(gray)
	return CropBorders(gray, cropPadding)
}

// Grayscale converts any image to 8-bit grayscale using the standard
// luminance weights.
func Grayscale(src image.Image) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	return dst
}

// DetectSkewAngle estimates the rotation of text lines in degrees. It
// shears a downsampled ink map through candidate angles and picks the
// one whose horizontal projection has the highest variance: straight
// text lines concentrate ink into few rows.
func DetectSkewAngle(gray *image.Gray) float64 {
	sampled, points := inkPoints(gray)
	if len(points) < 64 {
		return 0
	}

	height := sampled.Dy()
	bestAngle, bestScore := 0.0, -1.0

	for angle := -maxSkewDegrees; angle <= maxSkewDegrees+1e-9; angle += skewStepDegrees {
		tan := math.Tan(angle * math.Pi / 180)
		rows := make([]int, height)
		for _, pt := range points {
			y := pt.Y - int(float64(pt.X)*tan)
			if y >= 0 && y < height {
				rows[y]++
			}
		}

		score := projectionVariance(rows, len(points))
		if score > bestScore {
			bestScore = score
			bestAngle = angle
		}
	}

	return bestAngle
}

// inkPoints downsamples the image to at most 1000px wide and collects
// the coordinates of dark pixels.
func inkPoints(gray *image.Gray) (image.Rectangle, []image.Point) {
	bounds := gray.Bounds()
	step := 1
	if bounds.Dx() > 1000 {
		step = (bounds.Dx() + 999) / 1000
	}

	threshold := OtsuThreshold(gray)
	var points []image.Point
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			if gray.GrayAt(x, y).Y < threshold {
				points = append(points, image.Point{X: (x - bounds.Min.X) / step, Y: (y - bounds.Min.Y) / step})
			}
		}
	}

	sampled := image.Rect(0, 0, (bounds.Dx()+step-1)/step, (bounds.Dy()+step-1)/step)
	return sampled, points
}

func projectionVariance(rows []int, total int) float64 {
	if total == 0 {
		return 0
	}
	mean := float64(total) / float64(len(rows))
	var sum float64
	for _, c := range rows {
		d := float64(c) - mean
		sum += d * d
	}
	return sum / float64(len(rows))
}

// Rotate rotates the image by angle degrees around its center,
// resampling with Catmull-Rom and filling exposed corners with white.
func Rotate(gray *image.Gray, angle float64) *image.Gray {
	bounds := gray.Bounds()
	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	rad := angle * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx := float64(bounds.Dx()) / 2
	cy := float64(bounds.Dy()) / 2

	s2d := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}

	draw.CatmullRom.Transform(dst, s2d, gray, bounds, draw.Over, nil)
	return dst
}

// ApplyGamma brightens midtones via a lookup table. Values above 1
// lighten the image, which pulls faint print away from the paper tint
// before binarization.
func ApplyGamma(gray *image.Gray, gamma float64) *image.Gray {
	var table [256]uint8
	inv := 1.0 / gamma
	for i := 0; i < 256; i++ {
		table[i] = uint8(math.Pow(float64(i)/255.0, inv)*255.0 + 0.5)
	}

	bounds := gray.Bounds()
	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.Gray{Y: table[gray.GrayAt(x, y).Y]})
		}
	}
	return dst
}

// Denoise applies a 3x3 median filter, which removes salt-and-pepper
// scanner noise without blurring glyph edges.
func Denoise(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	var window [9]uint8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					window[n] = gray.GrayAt(bounds.Min.X+nx, bounds.Min.Y+ny).Y
					n++
				}
			}
			dst.SetGray(x, y, color.Gray{Y: median(window[:n])})
		}
	}
	return dst
}

func median(v []uint8) uint8 {
	// Insertion sort; windows are at most 9 wide.
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
	return v[len(v)/2]
}

// OtsuThreshold computes the global binarization threshold that
// minimizes intra-class variance of the ink/paper histogram.
func OtsuThreshold(gray *image.Gray) uint8 {
	var hist [256]int
	bounds := gray.Bounds()
	total := bounds.Dx() * bounds.Dy()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
		}
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var sumB, wB float64
	bestThreshold, bestBetween := uint8(0), -1.0
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > bestBetween {
			bestBetween = between
			bestThreshold = uint8(t)
		}
	}
	return bestThreshold
}

// Binarize converts the image to pure black and white using the Otsu
// threshold.
func Binarize(gray *image.Gray) *image.Gray {
	threshold := OtsuThreshold(gray)
	bounds := gray.Bounds()
	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := uint8(255)
			if gray.GrayAt(x, y).Y <= threshold {
				v = 0
			}
			dst.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.Gray{Y: v})
		}
	}
	return dst
}

// CropBorders trims surrounding white margin down to the content
// bounding box plus pad pixels. An all-white image is returned as-is.
func CropBorders(gray *image.Gray, pad int) *image.Gray {
	bounds := gray.Bounds()
	minX, minY := bounds.Max.X, bounds.Max.Y
	maxX, maxY := bounds.Min.X-1, bounds.Min.Y-1

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if gray.GrayAt(x, y).Y < 255 {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}

	if maxX < minX || maxY < minY {
		return gray
	}

	minX = max(minX-pad, bounds.Min.X)
	minY = max(minY-pad, bounds.Min.Y)
	maxX = min(maxX+pad, bounds.Max.X-1)
	maxY = min(maxY+pad, bounds.Max.Y-1)

	w, h := maxX-minX+1, maxY-minY+1
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.SetGray(x, y, gray.GrayAt(minX+x, minY+y))
		}
	}
	return dst
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
