package protocol

// TypeTag identifies the payload shape of a record (field 3).
type TypeTag string

// Sensor data TypeTags
const (
	TagEDA            TypeTag = "EA"
	TagEDL            TypeTag = "EL"
	TagEDR            TypeTag = "ER"
	TagPPGInfrared    TypeTag = "PI"
	TagPPGRed         TypeTag = "PR"
	TagPPGGreen       TypeTag = "PG"
	TagSpO2           TypeTag = "O2"
	TagTemperature0   TypeTag = "T0"
	TagTemperature1   TypeTag = "T1"
	TagThermopile     TypeTag = "TH"
	TagHumidity       TypeTag = "H0"
	TagAccelX         TypeTag = "AX"
	TagAccelY         TypeTag = "AY"
	TagAccelZ         TypeTag = "AZ"
	TagGyroX          TypeTag = "GX"
	TagGyroY          TypeTag = "GY"
	TagGyroZ          TypeTag = "GZ"
	TagMagX           TypeTag = "MX"
	TagMagY           TypeTag = "MY"
	TagMagZ           TypeTag = "MZ"
	TagBatteryVoltage TypeTag = "BV"
	TagBatteryPercent TypeTag = "B%"
	TagHeartRate      TypeTag = "HR"
	TagInterBeat      TypeTag = "BI"
	TagSCRAmplitude   TypeTag = "SA"
	TagSCRFrequency   TypeTag = "SF"
	TagSCRRiseTime    TypeTag = "SR"
)

// Device event and status TypeTags
const (
	TagBatteryStatus TypeTag = "BS"
	TagBatteryLow    TypeTag = "BL"
	TagDataClipping  TypeTag = "DC"
	TagDataOverflow  TypeTag = "DO"
	TagSDCardError   TypeTag = "SD"
	TagReset         TypeTag = "RS"
	TagDebug         TypeTag = "DB"
	TagAck           TypeTag = "AK"
	TagRequestData   TypeTag = "RD"
	TagTimeEmotiBit  TypeTag = "TE"
	TagTimeLocal     TypeTag = "TL"
	TagTimeUTC       TypeTag = "TU"
	TagTransmit      TypeTag = "TX"
	TagMode          TypeTag = "EM"
	TagInfo          TypeTag = "EI"
)

// Refined TX TypeTags. They never appear in raw records.
const (
	TagTxTimeLink    TypeTag = "TX_TL_LC"
	TagTxLinkLatency TypeTag = "TX_LC_LM"
)

// Computer data TypeTags (sent over reliable channel e.g. Control)
const (
	TagGPSLatLong TypeTag = "GL"
	TagGPSSpeed   TypeTag = "GS"
	TagGPSBearing TypeTag = "GB"
	TagGPSAlt     TypeTag = "BA"
	TagUserNote   TypeTag = "UN"
	TagLSLMarker  TypeTag = "LM"
)

// Control TypeTags
const (
	TagRecordBegin   TypeTag = "RB"
	TagRecordEnd     TypeTag = "RE"
	TagModeNormal    TypeTag = "MN"
	TagModeLowPower  TypeTag = "ML"
	TagModeMaxLow    TypeTag = "MM"
	TagModeOffline   TypeTag = "MO"
	TagModeHibernate TypeTag = "MH"
	TagEmotiBitDebug TypeTag = "ED"
	TagSerialDataOn  TypeTag = "S+"
	TagSerialDataOff TypeTag = "S-"
)

// Advertising TypeTags
const (
	TagPing              TypeTag = "PN"
	TagPong              TypeTag = "PO"
	TagHelloEmotiBit     TypeTag = "HE"
	TagHelloHost         TypeTag = "HH"
	TagEmotiBitConnected TypeTag = "EC"
)

// shape is the payload layout a TypeTag decodes into.
type shape uint8

const (
	shapeEmpty shape = iota
	shapeFloats
	shapeUints
	shapeInts
	shapeStrings
	shapeText
)

// shapes is the single dispatch table for raw TypeTags. Refined TX tags are
// not listed, so records carrying them are rejected as unknown.
var shapes = map[TypeTag]shape{
	TagEDA:            shapeFloats,
	TagEDL:            shapeFloats,
	TagEDR:            shapeFloats,
	TagTemperature0:   shapeFloats,
	TagTemperature1:   shapeFloats,
	TagThermopile:     shapeFloats,
	TagAccelX:         shapeFloats,
	TagAccelY:         shapeFloats,
	TagAccelZ:         shapeFloats,
	TagGyroX:          shapeFloats,
	TagGyroY:          shapeFloats,
	TagGyroZ:          shapeFloats,
	TagBatteryVoltage: shapeFloats,
	TagSCRAmplitude:   shapeFloats,
	TagSCRFrequency:   shapeFloats,
	TagSCRRiseTime:    shapeFloats,

	TagPPGInfrared:    shapeUints,
	TagPPGRed:         shapeUints,
	TagPPGGreen:       shapeUints,
	TagBatteryPercent: shapeUints,

	TagMagX:      shapeInts,
	TagMagY:      shapeInts,
	TagMagZ:      shapeInts,
	TagHeartRate: shapeInts,
	TagInterBeat: shapeInts,

	TagAck:         shapeStrings,
	TagRequestData: shapeStrings,
	TagUserNote:    shapeStrings,
	TagMode:        shapeStrings,
	TagTransmit:    shapeStrings,

	TagTimeLocal:   shapeText,
	TagRecordBegin: shapeText,

	TagSpO2:              shapeEmpty,
	TagHumidity:          shapeEmpty,
	TagBatteryStatus:     shapeEmpty,
	TagBatteryLow:        shapeEmpty,
	TagDataClipping:      shapeEmpty,
	TagDataOverflow:      shapeEmpty,
	TagSDCardError:       shapeEmpty,
	TagReset:             shapeEmpty,
	TagDebug:             shapeEmpty,
	TagTimeEmotiBit:      shapeEmpty,
	TagTimeUTC:           shapeEmpty,
	TagInfo:              shapeEmpty,
	TagGPSLatLong:        shapeEmpty,
	TagGPSSpeed:          shapeEmpty,
	TagGPSBearing:        shapeEmpty,
	TagGPSAlt:            shapeEmpty,
	TagLSLMarker:         shapeEmpty,
	TagRecordEnd:         shapeEmpty,
	TagModeNormal:        shapeEmpty,
	TagModeLowPower:      shapeEmpty,
	TagModeMaxLow:        shapeEmpty,
	TagModeOffline:       shapeEmpty,
	TagModeHibernate:     shapeEmpty,
	TagEmotiBitDebug:     shapeEmpty,
	TagSerialDataOn:      shapeEmpty,
	TagSerialDataOff:     shapeEmpty,
	TagPing:              shapeEmpty,
	TagPong:              shapeEmpty,
	TagHelloEmotiBit:     shapeEmpty,
	TagHelloHost:         shapeEmpty,
	TagEmotiBitConnected: shapeEmpty,
}

// Valid reports whether t may appear in a raw record.
func (t TypeTag) Valid() bool {
	_, ok := shapes[t]
	return ok
}

// String returns the tag as written in records and export file names.
func (t TypeTag) String() string {
	return string(t)
}
