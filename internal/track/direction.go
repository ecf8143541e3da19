package track

// DirectionMargin is the pixel band around the image center classified as
// CENTER.
const DirectionMargin = 20

// Position labels where a coordinate lies relative to the image center.
type Position string

const (
	PosCenter Position = "CENTER"
	PosLeft   Position = "LEFT"
	PosRight  Position = "RIGHT"
	PosTop    Position = "TOP"
	PosBottom Position = "BOTTOM"
)

// Motion labels the direction of the last commanded move on one axis.
type Motion string

const (
	MotionHold  Motion = "HOLD"
	MotionLeft  Motion = "LEFT"
	MotionRight Motion = "RIGHT"
	MotionUp    Motion = "UP"
	MotionDown  Motion = "DOWN"
)

// motionEpsilon is the smallest angle change reported as motion
const motionEpsilon = 1e-3

// Direction classifies (x, y) in a width x height image. It is diagnostic
// only and never feeds back into control.
func Direction(x, y, width, height int) (Position, Position) {
	cx, cy := width/2, height/2

	h := PosCenter
	switch {
	case x+DirectionMargin < cx:
		h = PosLeft
	case x > cx+DirectionMargin:
		h = PosRight
	}

	v := PosCenter
	switch {
	case y+DirectionMargin < cy:
		v = PosTop
	case y > cy+DirectionMargin:
		v = PosBottom
	}
	return h, v
}

func panMotion(from, to float64) Motion {
	switch {
	case to > from+motionEpsilon:
		return MotionRight
	case to+motionEpsilon < from:
		return MotionLeft
	default:
		return MotionHold
	}
}

func tiltMotion(from, to float64) Motion {
	switch {
	case to > from+motionEpsilon:
		return MotionDown
	case to+motionEpsilon < from:
		return MotionUp
	default:
		return MotionHold
	}
}
