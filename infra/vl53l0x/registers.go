package vl53l0x

// Register map subset used for single-shot ranging.
const (
	regSysrangeStart                  = 0x00
	regSystemSequenceConfig           = 0x01
	regSystemInterruptConfigGPIO      = 0x0A
	regSystemInterruptClear           = 0x0B
	regResultInterruptStatus          = 0x13
	regResultRangeStatus              = 0x14
	regFinalRangeMinCountRateRtnLimit = 0x44
	regMSRCConfigControl              = 0x60
	regGPIOHVMuxActiveHigh            = 0x84
	regI2CStandardMode                = 0x88
	regVHVConfigPadSCLSDAExtsupHV     = 0x89
	regIdentificationModelID          = 0xC0
	regGlobalConfigSPADEnablesRef0    = 0xB0
	regGlobalConfigRefEnStartSelect   = 0xB6

	// Page select and power registers of the private register bank.
	regPowerManagement = 0x80
	regPageSelect      = 0xFF
	regStopVariable    = 0x91

	// Private registers used to read the reference SPAD info from NVM.
	regSPADInfoStrobe            = 0x83
	regSPADInfo                  = 0x92
	regDynamicSPADRefEnStartOffs = 0x4F
	regDynamicSPADNumRequested   = 0x4E

	modelID = 0xEE

	sysrangeModeStart = 0x01
	vhvCalibration    = 0x40

	// signal rate limit of 0.25 MCPS in 9.7 fixed point
	signalRateLimit = 0x0020

	// reference SPAD map size in bytes (48 SPADs)
	spadMapSize = 6
	// first SPAD of the aperture array in the reference map
	spadApertureStart = 12

	// Range reported when no target returned enough signal.
	rangeNoTarget = 8190
)

// deviceStatus maps the raw device range status (bits 3-6 of the result
// register) to the reported range status code.
func deviceStatus(raw byte) uint8 {
	switch (raw & 0x78) >> 3 {
	case 1, 2, 3:
		return 5
	case 6, 9:
		return 4
	case 8, 10:
		return 3
	case 4:
		return 2
	case 5:
		return 1
	default:
		return 0
	}
}
