// Package render draws the cones seen by the vehicle as a bird's-eye image, published as a camera frame.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/cyrilix/robocar-lfsd/pkg/cone"
	"github.com/cyrilix/robocar-protobuf/go/events"
	"github.com/disintegration/imaging"
	"github.com/golang/protobuf/ptypes/timestamp"
)

const (
	DefaultWidth  = 160
	DefaultHeight = 128
	// DefaultScale in pixels per meter
	DefaultScale = 5.

	coneSize    = 3
	vehicleSize = 5
	jpegQuality = 90
)

var (
	background   = color.NRGBA{R: 40, G: 40, B: 40, A: 255}
	vehicleColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

	coneColors = [cone.NumTypes]color.NRGBA{
		cone.TypeUnknown:     {R: 128, G: 128, B: 128, A: 255},
		cone.TypeYellow:      {R: 255, G: 220, B: 0, A: 255},
		cone.TypeBlue:        {R: 0, G: 80, B: 255, A: 255},
		cone.TypeOrangeSmall: {R: 255, G: 140, B: 0, A: 255},
		cone.TypeOrangeBig:   {R: 255, G: 80, B: 0, A: 255},
	}
)

// Renderer draws the vehicle at the bottom center of the image, looking up.
type Renderer struct {
	Width  int
	Height int
	Scale  float64

	patches [cone.NumTypes]*image.NRGBA
	vehicle *image.NRGBA
}

func New(width, height int, scale float64) *Renderer {
	r := Renderer{
		Width:   width,
		Height:  height,
		Scale:   scale,
		vehicle: imaging.New(vehicleSize, vehicleSize, vehicleColor),
	}
	for t, c := range coneColors {
		r.patches[t] = imaging.New(coneSize, coneSize, c)
	}
	return &r
}

// Pixel returns the image position of a point of the vehicle frame (x forward, y left).
func (r *Renderer) Pixel(x, y float64) image.Point {
	return image.Pt(
		r.Width/2-int(y*r.Scale),
		r.Height-1-int(x*r.Scale),
	)
}

// Render draws cones, observations outside the image are skipped.
func (r *Renderer) Render(cones []cone.Observation) *image.NRGBA {
	img := imaging.New(r.Width, r.Height, background)
	bounds := img.Bounds()

	for _, c := range cones {
		p := r.Pixel(c.X, c.Y)
		if !p.In(bounds) {
			continue
		}
		patch := r.patches[cone.TypeUnknown]
		if c.Type.Valid() {
			patch = r.patches[c.Type]
		}
		img = imaging.Paste(img, patch, p.Sub(image.Pt(coneSize/2, coneSize/2)))
	}
	return imaging.Paste(img, r.vehicle, r.Pixel(0, 0).Sub(image.Pt(vehicleSize/2, vehicleSize-1)))
}

// Encode renders cones as a jpeg image.
func (r *Renderer) Encode(cones []cone.Observation) ([]byte, error) {
	buf := bytes.Buffer{}
	if err := imaging.Encode(&buf, r.Render(cones), imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("unable to encode frame: %v", err)
	}
	return buf.Bytes(), nil
}

// Frame builds the frame message of cones seen at ts.
func (r *Renderer) Frame(name string, ts time.Time, cones []cone.Observation) (*events.FrameMessage, error) {
	img, err := r.Encode(cones)
	if err != nil {
		return nil, err
	}
	return &events.FrameMessage{
		Id: &events.FrameRef{
			Name: name,
			Id:   fmt.Sprintf("%d%03d", ts.Unix(), ts.Nanosecond()/1000/1000),
			CreatedAt: &timestamp.Timestamp{
				Seconds: ts.Unix(),
				Nanos:   int32(ts.Nanosecond()),
			},
		},
		Frame: img,
	}, nil
}
