package domain

// KeyClass is the semantic class of a remote button.
type KeyClass int

const (
	KeyUnknown KeyClass = iota
	KeyAnswer
	KeyBackward
	KeyForward
	KeyConfirm
	KeyPause
	KeyResume
)

func (c KeyClass) String() string {
	switch c {
	case KeyAnswer:
		return "answer"
	case KeyBackward:
		return "backward"
	case KeyForward:
		return "forward"
	case KeyConfirm:
		return "confirm"
	case KeyPause:
		return "pause"
	case KeyResume:
		return "resume"
	default:
		return "unknown"
	}
}

// Info codes sent by the receiver. The table must match the physical remotes.
const (
	InfoBackward = "R52:6"
	InfoForward  = "R52:3"
	InfoConfirm  = "R52:7"
	InfoPause    = "RS5:9"
	InfoResume   = "RS5:12"
)

var answerCodes = map[string]int{"A": 0, "B": 1, "C": 2, "D": 3}

var controlCodes = map[string]KeyClass{
	InfoBackward: KeyBackward,
	InfoForward:  KeyForward,
	InfoConfirm:  KeyConfirm,
	InfoPause:    KeyPause,
	InfoResume:   KeyResume,
}

// Classify maps an info code to its class. The option index is only meaningful for KeyAnswer.
func Classify(info string) (KeyClass, int) {
	if option, ok := answerCodes[info]; ok {
		return KeyAnswer, option
	}
	if class, ok := controlCodes[info]; ok {
		return class, 0
	}
	return KeyUnknown, 0
}

// OptionLetter renders an option index as the letter printed on the remote.
func OptionLetter(option int) string {
	if option < 0 || option >= OptionCount {
		return ""
	}
	return string(rune('A' + option))
}
