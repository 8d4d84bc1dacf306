package bledb

// Kind classifies an assigned number.
type Kind int

const (
	KindUnknown Kind = iota
	KindDeclaration
	KindService
	KindCharacteristic
	KindDescriptor
)

type entry struct {
	name string
	kind Kind
}

// assigned covers the attributes this tool reports on. Vendor entries for the
// magnetometer lab service sit next to the SIG numbers they shadow.
var assigned = map[uint16]entry{
	0x2800: {"Primary Service", KindDeclaration},
	0x2801: {"Secondary Service", KindDeclaration},
	0x2802: {"Include", KindDeclaration},
	0x2803: {"Characteristic", KindDeclaration},

	0x1800: {"Generic Access", KindService},
	0x1801: {"Generic Attribute", KindService},
	0x1805: {"Current Time", KindService},
	0x1809: {"Health Thermometer", KindService},
	0x180A: {"Device Information", KindService},
	0x180D: {"Heart Rate", KindService},
	0x180F: {"Battery Service", KindService},
	0x181A: {"Environmental Sensing", KindService},

	0x2A00: {"Device Name", KindCharacteristic},
	0x2A01: {"Appearance", KindCharacteristic},
	0x2A04: {"Peripheral Preferred Connection Parameters", KindCharacteristic},
	0x2A05: {"Service Changed", KindCharacteristic},
	0x2A19: {"Battery Level", KindCharacteristic},
	0x2A1C: {"Temperature Measurement", KindCharacteristic},
	0x2A1D: {"Temperature Type", KindCharacteristic},
	0x2A24: {"Model Number String", KindCharacteristic},
	0x2A25: {"Serial Number String", KindCharacteristic},
	0x2A26: {"Firmware Revision String", KindCharacteristic},
	0x2A29: {"Manufacturer Name String", KindCharacteristic},
	0x2A37: {"Heart Rate Measurement", KindCharacteristic},
	0x2A38: {"Body Sensor Location", KindCharacteristic},
	0x2A39: {"Heart Rate Control Point", KindCharacteristic},
	0x2AA6: {"Central Address Resolution", KindCharacteristic},
	0x2719: {"Magnetic Field X", KindCharacteristic},
	0x271A: {"Magnetic Field Y", KindCharacteristic},
	0x271B: {"Magnetic Field Z", KindCharacteristic},

	0x2900: {"Characteristic Extended Properties", KindDescriptor},
	0x2901: {"Characteristic User Description", KindDescriptor},
	0x2902: {"Client Characteristic Configuration", KindDescriptor},
	0x2903: {"Server Characteristic Configuration", KindDescriptor},
	0x2904: {"Characteristic Presentation Format", KindDescriptor},
	0x2905: {"Characteristic Aggregate Format", KindDescriptor},
}

// Name returns the assigned name of u, or "" when unknown.
func Name(u UUID) string {
	name, _ := Lookup(u)
	return name
}

// Lookup returns the assigned name and kind of u.
func Lookup(u UUID) (string, Kind) {
	v, ok := u.Alias16()
	if !ok {
		return "", KindUnknown
	}
	e, ok := assigned[v]
	if !ok {
		return "", KindUnknown
	}
	return e.name, e.kind
}

// Describe formats u with its name when one is known, e.g. "180d (Heart Rate)".
func Describe(u UUID) string {
	if name := Name(u); name != "" {
		return u.Short() + " (" + name + ")"
	}
	return u.Short()
}
