/**
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package libav

import (
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"

	"github.com/boriwo/glyphplay/internal/media"
)

var scaleFlags = map[string]astiav.SoftwareScaleContextFlag{
	"fast_bilinear": astiav.SoftwareScaleContextFlagFastBilinear,
	"bilinear":      astiav.SoftwareScaleContextFlagBilinear,
	"bicubic":       astiav.SoftwareScaleContextFlagBicubic,
	"point":         astiav.SoftwareScaleContextFlagPoint,
	"area":          astiav.SoftwareScaleContextFlagArea,
	"bicublin":      astiav.SoftwareScaleContextFlagBicublin,
	"gauss":         astiav.SoftwareScaleContextFlagGauss,
	"sinc":          astiav.SoftwareScaleContextFlagSinc,
	"lanczos":       astiav.SoftwareScaleContextFlagLanczos,
	"spline":        astiav.SoftwareScaleContextFlagSpline,
}

func scaleFlag(alg media.ScaleAlgorithm) (astiav.SoftwareScaleContextFlag, error) {
	name := strings.ToLower(string(alg))
	if name == "" {
		name = "bicubic"
	}
	f, ok := scaleFlags[name]
	if !ok {
		return 0, fmt.Errorf("unknown scale algorithm %q", alg)
	}
	return f, nil
}

// rgbScaler converts decoded frames to packed RGB24. The scale context is
// built from the first frame and rebuilt when the source geometry changes.
type rgbScaler struct {
	flag       astiav.SoftwareScaleContextFlag
	dstW, dstH int

	ssc    *astiav.SoftwareScaleContext
	dst    *astiav.Frame
	srcW   int
	srcH   int
	srcPix astiav.PixelFormat
	buf    []byte
}

// NewScaler returns a scaler producing width x height RGB24 images.
func (s *Source) NewScaler(_ media.Stream, width, height int, alg media.ScaleAlgorithm) (media.Scaler, error) {
	flag, err := scaleFlag(alg)
	if err != nil {
		return nil, err
	}
	return &rgbScaler{flag: flag, dstW: width, dstH: height}, nil
}

func (s *rgbScaler) ensure(src *astiav.Frame) error {
	if s.ssc != nil && src.Width() == s.srcW && src.Height() == s.srcH && src.PixelFormat() == s.srcPix {
		return nil
	}
	s.Close()

	ssc, err := astiav.CreateSoftwareScaleContext(
		src.Width(), src.Height(), src.PixelFormat(),
		s.dstW, s.dstH, astiav.PixelFormatRgb24,
		astiav.NewSoftwareScaleContextFlags(s.flag),
	)
	if err != nil {
		return fmt.Errorf("creating scale context %dx%d %s -> %dx%d rgb24: %w",
			src.Width(), src.Height(), src.PixelFormat(), s.dstW, s.dstH, err)
	}
	dst := astiav.AllocFrame()
	dst.SetWidth(s.dstW)
	dst.SetHeight(s.dstH)
	dst.SetPixelFormat(astiav.PixelFormatRgb24)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("allocating rgb frame: %w", err)
	}
	s.ssc, s.dst = ssc, dst
	s.srcW, s.srcH, s.srcPix = src.Width(), src.Height(), src.PixelFormat()
	return nil
}

func (s *rgbScaler) Scale(f media.Frame) (media.Image, error) {
	src, err := rawFrame(f)
	if err != nil {
		return media.Image{}, err
	}
	if err := s.ensure(src); err != nil {
		return media.Image{}, err
	}
	if err := s.ssc.ScaleFrame(src, s.dst); err != nil {
		return media.Image{}, fmt.Errorf("scaling frame: %w", err)
	}
	n, err := s.dst.ImageBufferSize(1)
	if err != nil {
		return media.Image{}, fmt.Errorf("sizing rgb buffer: %w", err)
	}
	// a fresh buffer per frame, grids must not share memory
	s.buf = make([]byte, n)
	if _, err := s.dst.ImageCopyToBuffer(s.buf, 1); err != nil {
		return media.Image{}, fmt.Errorf("copying rgb buffer: %w", err)
	}
	return media.Image{Width: s.dstW, Height: s.dstH, Pix: s.buf}, nil
}

func (s *rgbScaler) Close() {
	if s.dst != nil {
		s.dst.Free()
		s.dst = nil
	}
	if s.ssc != nil {
		s.ssc.Free()
		s.ssc = nil
	}
}
