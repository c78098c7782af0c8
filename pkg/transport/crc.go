package transport

import "github.com/sigurn/crc16"

// The frame check sequence is CRC-16/X.25 (HDLC FCS-16), sent least
// significant byte first.
var fcsTable = crc16.MakeTable(crc16.CRC16_X_25)

// FCS16 returns the CRC-16/X.25 frame check sequence of data.
func FCS16(data []byte) uint16 {
	return crc16.Checksum(data, fcsTable)
}
