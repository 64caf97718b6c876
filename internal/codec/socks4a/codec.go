// Package socks4a encodes and decodes the SOCKS4a CONNECT handshake:
// version, command, port, a sentinel address, then NUL-terminated user
// id and hostname strings, and an 8-byte granted/rejected reply.
package socks4a

import (
	"encoding/binary"
	"fmt"
)

// sentinel is the 0.0.0.1 SOCKS4a destination address meaning "hostname
// follows the user id".
var sentinel = [4]byte{0, 0, 0, 1}

const replyLen = 8
const grantedStatus = 90

// EncodeRequest builds the CONNECT request frame: version, command,
// port, sentinel address, NUL-terminated userID, NUL-terminated
// hostname. The caller must deliver the whole frame in one write;
// short writes are a protocol failure, never retried mid-frame.
func EncodeRequest(port uint16, userID, hostname string) []byte {
	buf := make([]byte, 0, 8+len(userID)+1+len(hostname)+1)
	buf = append(buf, 4, 1)
	buf = binary.BigEndian.AppendUint16(buf, port)
	buf = append(buf, sentinel[:]...)
	buf = append(buf, userID...)
	buf = append(buf, 0)
	buf = append(buf, hostname...)
	buf = append(buf, 0)
	return buf
}

// DecodeReply validates the 8-byte SOCKS4a reply. A version byte other
// than 0, or a status byte other than 90 (granted), is a protocol error.
func DecodeReply(reply []byte) error {
	if len(reply) < replyLen {
		return fmt.Errorf("socks4a reply truncated: got %d of %d bytes", len(reply), replyLen)
	}
	ver, status := reply[0], reply[1]
	if ver != 0 || status != grantedStatus {
		return fmt.Errorf("socks4a request rejected: ver=%d status=%d", ver, status)
	}
	return nil
}

// ReplyLen is the fixed size of a SOCKS4a reply frame.
const ReplyLen = replyLen
