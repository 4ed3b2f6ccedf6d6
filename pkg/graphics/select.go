package graphics

import (
	"github.com/joouha/termview/pkg/convert"
)

// Protocol names accepted as a preference.
const (
	ProtoAuto  = ""
	ProtoNone  = "none"
	ProtoSixel = "sixel"
	ProtoKitty = "kitty"
	ProtoIterm = "iterm"
)

// SelectControl picks the graphics protocol for a datum and builds its
// control. The preferred protocol is used when the terminal supports it;
// otherwise the best supported protocol wins, in iTerm, kitty, sixel
// order. A protocol is only usable if a conversion route exists from the
// datum's format to the protocol's payload format, and kitty and iTerm
// graphics inside a multiplexer additionally require passthrough to be
// forced on. Returns nil when no protocol is usable.
func SelectControl(reg *convert.Registry, d *convert.Datum, term Terminal, out Output, preferred string, force bool) Control {
	if preferred == ProtoNone {
		return nil
	}

	inMplex := term.Mplex != MplexNone
	pngRoute := len(reg.Routes(d.Format(), "base64-png")) > 0 || d.Format() == "base64-png"
	sixelRoute := len(reg.Routes(d.Format(), "sixel")) > 0 || d.Format() == "sixel"

	iterm := func() Control { return NewItermControl(reg, d, term) }
	kitty := func() Control { return NewKittyControl(reg, d, term, out) }
	sixelC := func() Control { return NewSixelControl(d, term) }

	var usable []func() Control

	itermOK := (term.Iterm || force) && pngRoute
	if itermOK {
		usable = append(usable, iterm)
	}
	if preferred == ProtoIterm && itermOK && (!inMplex || force) {
		return iterm()
	}

	kittyOK := (term.Kitty || force) && pngRoute && (!inMplex || force)
	if kittyOK {
		usable = append(usable, kitty)
	}
	if preferred == ProtoKitty && kittyOK {
		return kitty()
	}

	// tmux supports sixel natively since 3.4, so no passthrough gate.
	sixelOK := (term.Sixel || force) && sixelRoute
	if sixelOK {
		usable = append(usable, sixelC)
	}
	if preferred == ProtoSixel && sixelOK {
		return sixelC()
	}

	if len(usable) > 0 {
		return usable[0]()
	}
	return nil
}
