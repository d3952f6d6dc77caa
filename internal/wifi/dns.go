// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package wifi

import (
	"encoding/binary"
	"net"
)

// serveDNS answers every query on conn that it can parse, whatever its
// QTYPE, with a fixed A-record answer pointing to gateway, TTL 60,
// preserving the query's
// transaction id and question section. No DNS library appears anywhere
// in the retrieval pack this module was built from, so this speaks just
// enough of the wire format by hand with encoding/binary — the same
// tool the pack's own framebuffer and TCON-resolution command payloads
// are built with.
func serveDNS(conn net.PacketConn, gateway string) {
	ip := net.ParseIP(gateway).To4()
	if ip == nil {
		return
	}
	buf := make([]byte, 512)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		resp, ok := buildResponse(buf[:n], ip)
		if !ok {
			continue
		}
		conn.WriteTo(resp, addr)
	}
}

// buildResponse parses just enough of a DNS query (header + one
// question) to echo back an A-record answer; anything it cannot parse
// is dropped rather than answered incorrectly.
func buildResponse(query []byte, ip net.IP) ([]byte, bool) {
	if len(query) < 12 {
		return nil, false
	}
	qdcount := binary.BigEndian.Uint16(query[4:6])
	if qdcount == 0 {
		return nil, false
	}

	// Walk the question section to find where it ends.
	pos := 12
	for pos < len(query) {
		labelLen := int(query[pos])
		if labelLen == 0 {
			pos++
			break
		}
		pos += 1 + labelLen
		if pos > len(query) {
			return nil, false
		}
	}
	pos += 4 // QTYPE + QCLASS
	if pos > len(query) {
		return nil, false
	}
	question := query[12:pos]

	resp := make([]byte, 0, 12+len(question)+16)
	header := make([]byte, 12)
	copy(header, query[:2]) // transaction id
	header[2] = 0x81        // QR=1, opcode=0, AA=0, TC=0, RD=1
	header[3] = 0x80        // RA=1
	binary.BigEndian.PutUint16(header[4:6], 1)
	binary.BigEndian.PutUint16(header[6:8], 1)
	resp = append(resp, header...)
	resp = append(resp, question...)

	answer := make([]byte, 0, 16)
	answer = append(answer, 0xC0, 0x0C)                // pointer to question name at offset 12
	answer = binary.BigEndian.AppendUint16(answer, 1)  // TYPE A
	answer = binary.BigEndian.AppendUint16(answer, 1)  // CLASS IN
	answer = binary.BigEndian.AppendUint32(answer, 60) // TTL
	answer = binary.BigEndian.AppendUint16(answer, 4)  // RDLENGTH
	answer = append(answer, ip...)
	resp = append(resp, answer...)

	return resp, true
}
