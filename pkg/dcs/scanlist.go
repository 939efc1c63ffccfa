package dcs

// buildScanList filters the full permitted channel set down to the scan
// list: every channel whose bandwidth equals the current operating
// bandwidth, and whose derived primary-channel centre matches some
// permitted (centre, primary_width_mhz) pair (spec.md §4.G).
func buildScanList(all []*ChannelEntry, currentBWMHz int, primaryWidthMHz int, primary1MHzIndex int) []*ChannelEntry {
	permittedPrimaries := make(map[uint32]struct{}, len(all))
	for _, c := range all {
		if c.Descriptor.BandwidthMHz == primaryWidthMHz {
			permittedPrimaries[c.Descriptor.CentreFrequencyKHz] = struct{}{}
		}
	}

	var scanList []*ChannelEntry
	for _, c := range all {
		if c.Descriptor.BandwidthMHz != currentBWMHz {
			continue
		}
		centre, ok := primaryChannelCentreKHz(c.Descriptor.CentreFrequencyKHz, c.Descriptor.BandwidthMHz, primaryWidthMHz, primary1MHzIndex)
		if !ok {
			continue
		}
		if _, admissible := permittedPrimaries[centre]; !admissible {
			continue
		}
		scanList = append(scanList, c)
	}
	return scanList
}

// findByFrequencyAndBandwidth resolves the current_channel by matching
// (frequency_khz, bandwidth_mhz) against the permitted set, as STATUS's
// current-channel-resolution step requires.
func findByFrequencyAndBandwidth(all []*ChannelEntry, freqKHz uint32, bwMHz int) *ChannelEntry {
	for _, c := range all {
		if c.Descriptor.CentreFrequencyKHz == freqKHz && c.Descriptor.BandwidthMHz == bwMHz {
			return c
		}
	}
	return nil
}
