// Package comm implements the framed serial protocol spoken with the XMega.
package comm

// Every frame starts with a header byte which is also the type code.
// The two high bits of the header select the length class:
//
//	00xxxxxx  no payload
//	01xxxxxx  1 byte payload
//	10xxxxxx  2 bytes payload
//	11xxxxxx  1 byte length, followed by that many bytes of payload
//
// A header with both bits of 0x30 set flags an error reported by the
// device. The flag is logged and the frame is still dispatched.
//
// The class is derived from the header only, before the type table is
// consulted. The declared length in the type table is only used to check
// a decoded frame.
//
// There is no framing marker or checksum on the wire. Once a payload
// boundary is read wrongly (e.g. a dropped byte) the stream stays out of
// sync and the link has to be reopened. This package does not attempt
// to resynchronize.
//
// A Proxy runs two loops over one Link: the Reader decodes frames and
// calls bound handlers, the Writer drains the outbound Queue one frame at
// a time and sends a keep-alive frame on its own timer so a busy queue
// never starves the device watchdog.
