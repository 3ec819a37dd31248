package protocol

const (
	// Server → client
	S2CWelcome = 0x01
	S2CState   = 0x03

	// Client → server
	C2SInput = 0x02
)
