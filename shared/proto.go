package shared

import "time"

// Control channel verbs. Every control message is a single line terminated
// by '\n', fields separated by a single space.
const (
	CMD_SEND    = "SEND"    // client -> server: SEND <file> <ip> <port>
	CMD_RESEND  = "RESEND"  // client -> server: RESEND <index>
	MSG_SESSION = "SESSION" // server -> client: SESSION <id>
	MSG_BEGIN   = "BEGIN"   // server -> client: BEGIN <session> <units> <unitSize>
	MSG_DONE    = "DONE"    // server -> client: DONE <session> <units>
	MSG_ERROR   = "ERROR"   // server -> client: ERROR <reason>
)

const (
	EVENT_SEPARATOR = ":"
	LINE_TERMINATOR = '\n'
)

const (
	DATA_HEADER_SIZE     = 20 // session_id u64, packet_index u64, data_length u32
	MAX_DATAGRAM_SIZE    = 65507
	DEFAULT_UNIT_SIZE    = 1024
	DEFAULT_PACKET_DELAY = 500 * time.Microsecond
	MAX_CONTROL_LINE     = 64 * 1024
	MAX_UNITS            = 1 << 32 // unit sequences are u32
)

// Status codes handed to the unit status observer.
const (
	STATUS_RECEIVED = 1
)
