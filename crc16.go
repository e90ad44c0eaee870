package redisring

// crc16 implements the CRC16-CCITT (XMODEM) variant used by redis
// cluster to map keys to hash slots: polynomial 0x1021, no initial
// value, no final xor, most-significant bit first.
// Reference value: crc16("123456789") == 0x31C3.

var crc16tab [256]uint16

func init() {
	for i := range crc16tab {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		crc16tab[i] = crc
	}
}

func crc16(key string) uint16 {
	var crc uint16
	for i := 0; i < len(key); i++ {
		crc = crc<<8 ^ crc16tab[byte(crc>>8)^key[i]]
	}
	return crc
}
