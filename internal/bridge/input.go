package bridge

// Input is a semantic gesture decoded from the surface's wire protocol.
// The set of kinds is closed; the dispatcher matches it exhaustively.
type Input interface {
	isInput()
}

// EncoderInput is a relative turn of one of the 8 top encoders.
// Delta is signed: positive clockwise.
type EncoderInput struct {
	Index int
	Delta int
}

// ButtonInput is a momentary press. Row 0 is the top encoder push row,
// rows 1 and 2 are the button grid; columns count from the left.
type ButtonInput struct {
	Row int
	Col int
}

// LayerSwitchInput selects an alternate surface mapping.
type LayerSwitchInput struct {
	Layer int
}

// FaderInput is an absolute main-fader position, normalized to [0, 1].
type FaderInput struct {
	Value float64
}

func (EncoderInput) isInput()     {}
func (ButtonInput) isInput()      {}
func (LayerSwitchInput) isInput() {}
func (FaderInput) isInput()       {}
