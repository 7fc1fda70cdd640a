package apds9960

type register byte

const (
	regEnable  register = 0x80
	regATime   register = 0x81
	regWTime   register = 0x83
	regPILT    register = 0x89
	regPIHT    register = 0x8B
	regPers    register = 0x8C
	regConfig1 register = 0x8D
	regPPulse  register = 0x8E
	regControl register = 0x8F
	regConfig2 register = 0x90
	regID      register = 0x92
	regStatus  register = 0x93
	regCDataL  register = 0x94
	regPData   register = 0x9C
	regConfig3 register = 0x9F

	regGPEnTh  register = 0xA0
	regGExTh   register = 0xA1
	regGConf1  register = 0xA2
	regGConf2  register = 0xA3
	regGPulse  register = 0xA6
	regGConf3  register = 0xAA
	regGConf4  register = 0xAB
	regGFLvl   register = 0xAE
	regGStatus register = 0xAF

	regPIClear register = 0xE5
	regCIClear register = 0xE6
	regAIClear register = 0xE7
	regGFIFOU  register = 0xFC
)

const deviceID = 0xAB

// ENABLE
const (
	bitEnablePON  byte = 0x01
	bitEnableAEN  byte = 0x02
	bitEnablePEN  byte = 0x04
	bitEnablePIEN byte = 0x20
	bitEnableGEN  byte = 0x40
)

// STATUS
const (
	bitStatusAVALID byte = 0x01
	bitStatusPVALID byte = 0x02
	bitStatusGINT   byte = 0x04
	bitStatusAINT   byte = 0x10
	bitStatusPINT   byte = 0x20
)

// GCONF4
const (
	bitGConf4GMode   byte = 0x01
	bitGConf4GIEN    byte = 0x02
	bitGConf4FIFOClr byte = 0x04
)

// GSTATUS
const (
	bitGStatusGValid byte = 0x01
	bitGStatusGFOV   byte = 0x02
)

// The FIFO holds 32 datasets of 4 bytes; one burst never reads more.
const (
	fifoDatasetSize = 4
	fifoMaxBurst    = 32 * fifoDatasetSize
)

// field describes a multi-bit value inside a register.
type field struct {
	reg  register
	pos  uint
	mask byte
}

var (
	fieldPPers    = field{regPers, 4, 0xF0}
	fieldPPulse   = field{regPPulse, 0, 0x3F}
	fieldPPLen    = field{regPPulse, 6, 0xC0}
	fieldAGain    = field{regControl, 0, 0x03}
	fieldPGain    = field{regControl, 2, 0x0C}
	fieldLDrive   = field{regControl, 6, 0xC0}
	fieldLEDBoost = field{regConfig2, 4, 0x30}
	fieldGExPers  = field{regGConf1, 0, 0x03}
	fieldGFIFOTh  = field{regGConf1, 6, 0xC0}
	fieldGWTime   = field{regGConf2, 0, 0x07}
	fieldGLDrive  = field{regGConf2, 3, 0x18}
	fieldGGain    = field{regGConf2, 5, 0x60}
	fieldGPulse   = field{regGPulse, 0, 0x3F}
	fieldGPLen    = field{regGPulse, 6, 0xC0}
)

// RegisterInfo names one configuration register for dumps.
type RegisterInfo struct {
	Name    string `json:"name"`
	Address byte   `json:"address"`
}

// ConfigRegisters lists the registers reported by DumpRegisters, in address order.
var ConfigRegisters = []RegisterInfo{
	{"ENABLE", byte(regEnable)},
	{"ATIME", byte(regATime)},
	{"WTIME", byte(regWTime)},
	{"AILTL", 0x84},
	{"AILTH", 0x85},
	{"AIHTL", 0x86},
	{"AIHTH", 0x87},
	{"PILT", byte(regPILT)},
	{"PIHT", byte(regPIHT)},
	{"PERS", byte(regPers)},
	{"CONFIG1", byte(regConfig1)},
	{"PPULSE", byte(regPPulse)},
	{"CONTROL", byte(regControl)},
	{"CONFIG2", byte(regConfig2)},
	{"STATUS", byte(regStatus)},
	{"POFFSET_UR", 0x9D},
	{"POFFSET_DL", 0x9E},
	{"CONFIG3", byte(regConfig3)},
	{"GPENTH", byte(regGPEnTh)},
	{"GEXTH", byte(regGExTh)},
	{"GCONF1", byte(regGConf1)},
	{"GCONF2", byte(regGConf2)},
	{"GOFFSET_U", 0xA4},
	{"GOFFSET_D", 0xA5},
	{"GPULSE", byte(regGPulse)},
	{"GOFFSET_L", 0xA7},
	{"GOFFSET_R", 0xA9},
	{"GCONF3", byte(regGConf3)},
	{"GCONF4", byte(regGConf4)},
	{"GFLVL", byte(regGFLvl)},
	{"GSTATUS", byte(regGStatus)},
}
