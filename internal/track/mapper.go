package track

// Mapper converts image coordinates into target pan/tilt angles. The image
// center maps to 90/90 and each frame edge to 90 plus or minus the axis
// half-span.
type Mapper struct {
	centerX, centerY float64
	panSpan          float64
	tiltSpan         float64
	invertPan        bool
	invertTilt       bool
}

// NewMapper builds a mapper from the geometry and span settings of cfg.
func NewMapper(cfg Config) Mapper {
	cfg = cfg.normalized()
	return Mapper{
		centerX:    float64(cfg.Width) / 2,
		centerY:    float64(cfg.Height) / 2,
		panSpan:    cfg.PanHalfSpan,
		tiltSpan:   cfg.TiltHalfSpan,
		invertPan:  cfg.InvertPan,
		invertTilt: cfg.InvertTilt,
	}
}

// Angles returns the target angles for (x, y). Inverted axes report
// 180 minus the mapped angle.
func (m Mapper) Angles(x, y float64) (pan, tilt float64) {
	pan = 90 + (x-m.centerX)*m.panSpan/m.centerX
	tilt = 90 + (y-m.centerY)*m.tiltSpan/m.centerY
	if m.invertPan {
		pan = 180 - pan
	}
	if m.invertTilt {
		tilt = 180 - tilt
	}
	return pan, tilt
}

// Center returns the image center in pixels.
func (m Mapper) Center() (float64, float64) {
	return m.centerX, m.centerY
}
