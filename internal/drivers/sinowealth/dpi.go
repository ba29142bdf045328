package sinowealth

import (
	"github.com/enkore/libratbag/pkg/ratbag"
)

// DPI/CPI is encoded the way the PMW3360 sensor accepts it. The PC software
// only goes down to 400 but the sensor doesn't care.
const (
	dpiMin  = 100
	dpiMax  = 12000
	dpiStep = 100

	// numDPIs is the number of exposed DPI slots. The report structurally
	// supports eight but the vendor software only exposes six.
	numDPIs = 6
)

func rawToDPI(raw byte) int {
	return (int(raw) + 1) * 100
}

// dpiToRaw expects a positive multiple of 100; anything else is silently
// truncated, matching device tolerance beyond the nominal UI range.
func dpiToRaw(dpi int) byte {
	return byte(dpi/100 - 1)
}

// dpiList returns the valid DPI values for a slot: the 0 sentinel meaning
// "slot disabled" followed by every step of the sensor range. The sentinel
// never appears in the raw encoding, it is represented through the disabled
// mask instead.
func dpiList() []int {
	list := make([]int, 0, (dpiMax-dpiMin)/dpiStep+2)
	list = append(list, 0)
	for dpi := dpiMin; dpi <= dpiMax; dpi += dpiStep {
		list = append(list, dpi)
	}
	return list
}

// decodeDPISlot reads the sensitivity of one slot. In XY-independent mode a
// slot occupies two consecutive raw bytes, otherwise one byte shared by
// both axes. A set bit in the inverted disabled mask overrides whatever the
// raw bytes say.
func (c *configReport) decodeDPISlot(index int) (dpiX, dpiY int) {
	if c.xyIndependent() {
		dpiX = rawToDPI(c.dpi[index*2])
		dpiY = rawToDPI(c.dpi[index*2+1])
	} else {
		dpiX = rawToDPI(c.dpi[index])
		dpiY = dpiX
	}
	if c.dpiDisabled&(1<<index) != 0 {
		// slot is disabled, fake it by reporting 0 DPI
		dpiX = 0
		dpiY = 0
	}
	return dpiX, dpiY
}

// independentXY decides the device-wide XY mode: independent as soon as any
// enabled resolution has differing axes. A disabled slot or a slot with one
// zero axis does not force independent mode.
func independentXY(resolutions []*ratbag.Resolution) bool {
	for _, res := range resolutions {
		if res.DPIX != res.DPIY && res.DPIX != 0 && res.DPIY != 0 {
			return true
		}
	}
	return false
}

// encodeDPISlots writes all slots and rebuilds the disabled mask. The mask
// starts fully set ("all disabled") and bits are cleared for slots where
// both axes are nonzero.
func (c *configReport) encodeDPISlots(resolutions []*ratbag.Resolution) {
	c.setXYIndependent(independentXY(resolutions))

	c.dpiDisabled = 0xff
	for _, res := range resolutions {
		if c.xyIndependent() {
			c.dpi[res.Index*2] = dpiToRaw(res.DPIX)
			c.dpi[res.Index*2+1] = dpiToRaw(res.DPIY)
		} else {
			c.dpi[res.Index] = dpiToRaw(res.DPIX)
		}
		if res.DPIX != 0 && res.DPIY != 0 {
			// enable the slot (the mask is inverted)
			c.dpiDisabled &^= 1 << res.Index
		}
	}
}
