package graphics

// Palette indices are laid out as 16 color groups of 16 shades each:
// the high nibble selects the group, the low nibble the shade.
// Shade 0 of group 0 is the transparent index.

// ColorGroup returns the color group (high nibble) of a palette index.
func ColorGroup(idx uint8) int {
	return int(idx >> 4)
}

// Shade returns the shade (low nibble) of a palette index.
func Shade(idx uint8) int {
	return int(idx & 0x0F)
}

// PackShade builds a palette index from a color group and a shade.
// Both are truncated to four bits.
func PackShade(group, shade int) uint8 {
	return uint8(group&0x0F)<<4 | uint8(shade&0x0F)
}
