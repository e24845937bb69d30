package model

// Mods is the game's active-mods bitfield. Only the bits that affect rate
// are named; the rest pass through untouched.
type Mods uint32

const (
	ModDoubleTime Mods = 1 << 6
	ModHalfTime   Mods = 1 << 8
	ModNightCore  Mods = 1 << 9
	ModDayCore    Mods = 1 << 21 // not a stable osu! mod bit; reserved by this game's fork
)

// Rate maps the active-mods bitfield to the audio-playback multiplier. Only
// {DoubleTime, NightCore} -> 1.5x and {HalfTime, DayCore} -> 0.75x affect
// rate; every other combination is 1.0x.
func (m Mods) Rate() Rate {
	switch {
	case m&(ModDoubleTime|ModNightCore) != 0:
		return 1.5
	case m&(ModHalfTime|ModDayCore) != 0:
		return 0.75
	default:
		return BaseRate
	}
}
