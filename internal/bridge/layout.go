package bridge

// Hardware layout of the X-Touch Mini in MC mode. Note and control
// numbers are fixed by the firmware.

// ButtonIndexTable maps grid positions to note numbers. Positions 0-7
// are the upper button row, 8-15 the lower row; the top encoder pushes
// live on their own note range and are classified separately.
var ButtonIndexTable = [16]uint8{
	89, 90, 40, 41, 42, 43, 44, 45,
	87, 88, 91, 92, 86, 93, 94, 95,
}

// LayerButtonNotes are the two layer-select buttons, in layer order.
var LayerButtonNotes = [2]uint8{84, 85}

const (
	encoderBaseControl = 16 // relative turns arrive on controls 16-23
	encoderPushBase    = 32 // encoder pushes arrive on notes 32-39

	numEncoders = 8
)

// ringStyle quantizes a normalized value onto an encoder LED ring:
// the firmware renders ring value base+n, n in [0, span].
type ringStyle struct {
	base uint8
	span uint8
}

// Firmware display modes for the encoder rings.
var encoderStyles = map[string]ringStyle{
	"single": {base: 1, span: 11},
	"trim":   {base: 17, span: 9},
	"fan":    {base: 33, span: 10},
	"spread": {base: 49, span: 5},
}

const defaultStyle = "single"
