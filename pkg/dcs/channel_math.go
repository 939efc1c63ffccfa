package dcs

// primaryChannelCentreKHz derives the centre frequency of the primary
// sub-channel within an operating channel centred at centreKHz with
// bandwidth bwMHz (spec.md §4.G). bottom is the lower edge of the
// operating channel in kHz.
//
// Width 1: centre = bottom + idx*1000 + 500.
// Width 2: centre = bottom + (idx/2)*2000 + 1000.
//
// The result must lie strictly below bottom+bwMHz*1000, otherwise ok is
// false: SwitchTo then returns ErrFatalInvariant, and buildScanList
// leaves the channel out of the scan list.
func primaryChannelCentreKHz(centreKHz uint32, bwMHz int, primaryWidthMHz int, primary1MHzIndex int) (uint32, bool) {
	bottom := int64(centreKHz) - int64(bwMHz)*500
	idx := int64(primary1MHzIndex)

	var centre int64
	switch primaryWidthMHz {
	case 1:
		centre = bottom + idx*1000 + 500
	case 2:
		centre = bottom + (idx/2)*2000 + 1000
	default:
		return 0, false
	}

	top := bottom + int64(bwMHz)*1000
	if centre < bottom || centre >= top {
		return 0, false
	}
	return uint32(centre), true
}

// secondaryChannelOffset implements spec.md §4.G: 0 for a 1 MHz
// candidate bandwidth, otherwise +1 for an even primary index, -1 for
// odd.
func secondaryChannelOffset(candidateBWMHz int, primary1MHzIndex int) int {
	if candidateBWMHz == 1 {
		return 0
	}
	if primary1MHzIndex%2 == 0 {
		return 1
	}
	return -1
}
