package demo

import (
	"time"
	"unicode"

	"github.com/comalice/corofsm"
)

const (
	TransmitReadyState     = "transmitReady"
	TransmissionInProgress = "transmissionInProgress"
	SoundOnState           = "soundOn"
	TransmitMessageEvent   = "TransmitMessageEvent"
	TransmitSymbolEvent    = "TransmitSymbolEvent"
	TransmissionReadyEvent = "TransmissionReadyEvent"
	DoBeepEvent            = "DoBeepEvent"
	BeepDoneEvent          = "BeepDoneEvent"
)

var morseCode = map[rune]string{
	' ': " ",
	'A': ".-", 'B': "-...", 'C': "-.-.", 'D': "-..", 'E': ".",
	'F': "..-.", 'G': "--.", 'H': "....", 'I': "..", 'J': ".---",
	'K': "-.-", 'L': ".-..", 'M': "--", 'N': "-.", 'O': "---",
	'P': ".--.", 'Q': "--.-", 'R': ".-.", 'S': "...", 'T': "-",
	'U': "..-", 'V': "...-", 'W': ".--", 'X': "-..-", 'Y': "-.--", 'Z': "--..",
	'1': ".----", '2': "..---", '3': "...--", '4': "....-", '5': ".....",
	'6': "-....", '7': "--...", '8': "---..", '9': "----.", '0': "-----",
}

// Encode returns the Morse symbol of r. Characters without one encode as a
// word gap.
func Encode(r rune) string {
	if code, ok := morseCode[unicode.ToUpper(r)]; ok {
		return code
	}
	return " "
}

// Sounder switches the transmitter's sound.
type Sounder interface {
	Set(on bool)
}

// MorseConfig tunes a Morse machine.
type MorseConfig struct {
	// WordsPerMinute sets the dot time to 1200ms / WordsPerMinute.
	WordsPerMinute int
	Sounder        Sounder
	// Sleep waits for the given time; time.Sleep when nil.
	Sleep func(time.Duration)
	// Printer, if set, receives the characters and signals sent.
	Printer *Printer
}

func (c *MorseConfig) dot() time.Duration {
	return 1200 * time.Millisecond / time.Duration(min(max(c.WordsPerMinute, 1), 1200))
}

func (c *MorseConfig) printf(format string, args ...any) {
	if c.Printer != nil {
		c.Printer.Printf(format, args...)
	}
}

// soundOnState keeps the sound on for the duration carried by each beep.
func soundOnState(c *MorseConfig) corofsm.Task {
	return func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			if !ev.Is(DoBeepEvent) {
				return unrecognized(y, ev)
			}
			d, err := corofsm.As[time.Duration](ev)
			if err != nil {
				return err
			}
			c.Sounder.Set(true)
			c.Sleep(*d)
			c.Sounder.Set(false)
			if err := ev.Set(BeepDoneEvent); err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	}
}

// transmissionState times the dots and dashes of one symbol.
func transmissionState(c *MorseConfig) corofsm.Task {
	return func(y *corofsm.Yield) error {
		dot := c.dot()
		var (
			symbol string
			sent   int
		)
		ev := y.Await()
		for {
			switch {
			case ev.Is(TransmitSymbolEvent):
				s, err := corofsm.As[string](ev)
				if err != nil {
					return err
				}
				symbol, sent = *s, 0
			case ev.Is(BeepDoneEvent):
				// Gap between signals.
				c.Sleep(dot)
			default:
				return unrecognized(y, ev)
			}

			var err error
			if sent < len(symbol) {
				signal := symbol[sent]
				sent++
				c.printf("%d = %c\n", sent, signal)
				switch signal {
				case '.':
					_, err = corofsm.Construct(ev, DoBeepEvent, dot)
				case '-':
					_, err = corofsm.Construct(ev, DoBeepEvent, 3*dot)
				default:
					// A word gap is 7 dots and always ends its symbol.
					sent = len(symbol)
					c.Sleep(7 * dot)
					err = ev.Set(TransmissionReadyEvent)
				}
			} else {
				// Complete the 3 dot gap between symbols.
				c.Sleep(2 * dot)
				err = ev.Set(TransmissionReadyEvent)
			}
			if err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	}
}

// transmitReadyState splits a message into symbols and suspends when the
// whole message is sent.
func transmitReadyState(c *MorseConfig) corofsm.Task {
	return func(y *corofsm.Yield) error {
		var (
			message []rune
			sent    int
		)
		ev := y.Await()
		for {
			switch {
			case ev.Is(TransmitMessageEvent):
				s, err := corofsm.As[string](ev)
				if err != nil {
					return err
				}
				message, sent = []rune(*s), 0
			case ev.Is(TransmissionReadyEvent):
			default:
				return unrecognized(y, ev)
			}

			var err error
			if sent < len(message) {
				r := unicode.ToUpper(message[sent])
				sent++
				code := Encode(r)
				if code == " " {
					r = ' '
				}
				c.printf("--> '%c'\n", r)
				_, err = corofsm.Construct(ev, TransmitSymbolEvent, code)
			} else {
				err = ev.Release()
			}
			if err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	}
}

// NewMorse builds the Morse transmitter. Send it a TransmitMessageEvent
// carrying a string; SendEvent returns once the message has been sounded.
func NewMorse(c MorseConfig, opts ...corofsm.Option) (*corofsm.Machine, error) {
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	if c.Sounder == nil {
		c.Sounder = silent{}
	}
	return corofsm.NewMachineBuilder("Morse FSM", TransmitReadyState, opts...).
		State(TransmitReadyState, transmitReadyState(&c)).
		On(TransmitSymbolEvent, TransmissionInProgress).
		State(TransmissionInProgress, transmissionState(&c)).
		On(TransmissionReadyEvent, TransmitReadyState).
		On(DoBeepEvent, SoundOnState).
		State(SoundOnState, soundOnState(&c)).
		On(BeepDoneEvent, TransmissionInProgress).
		Build()
}

// Transmit sends message through m.
func Transmit(m *corofsm.Machine, message string) error {
	var ev corofsm.Event
	if _, err := corofsm.Construct(&ev, TransmitMessageEvent, message); err != nil {
		return err
	}
	return m.SendEvent(&ev)
}

type silent struct{}

func (silent) Set(bool) {}

// ConsoleSounder prints the sound changes.
type ConsoleSounder struct {
	Printer *Printer
}

func (s ConsoleSounder) Set(on bool) {
	if on {
		s.Printer.Printf("Sound = On\n")
		return
	}
	s.Printer.Printf("Sound = Off\n")
}
