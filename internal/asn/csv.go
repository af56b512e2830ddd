package asn

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// maxLineLen bounds a single CSV line, terminator included.
const maxLineLen = 1024

// LoadCSV reads IP-range-to-ASN mappings into m. Each line holds three
// comma-separated values: a start IP, an inclusive end IP, and an ASN.
// Example lines:
//
//	::,::ffff,1234
//	::1:0,2001::,4567
//
// IPv4 addresses are mapped into ::0.0.0.0 - ::255.255.255.255. Ranges must
// be non-overlapping.
func LoadCSV(m *Map, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLineLen), maxLineLen)
	lines := 0
	for scanner.Scan() {
		lines++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return lines, fmt.Errorf("asn: line %d: want 3 fields, got %d", lines, len(fields))
		}
		from, err := parseAddr(fields[0])
		if err != nil {
			return lines, fmt.Errorf("asn: line %d: %w", lines, err)
		}
		to, err := parseAddr(fields[1])
		if err != nil {
			return lines, fmt.Errorf("asn: line %d: %w", lines, err)
		}
		asn, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return lines, fmt.Errorf("asn: line %d: bad ASN %q: %w", lines, fields[2], err)
		}
		if err := m.Add(from, to, uint32(asn)); err != nil {
			return lines, fmt.Errorf("asn: line %d: %w", lines, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("asn: after line %d: %w", lines, err)
	}
	return lines, nil
}

// LoadCSVFile builds a fresh map from the file at path.
func LoadCSVFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("asn: open %s: %w", path, err)
	}
	defer f.Close()
	m := &Map{}
	lines, err := LoadCSV(m, f)
	if err != nil {
		return nil, err
	}
	log.Infof("Read %d entries from ASN CSV %s", lines, path)
	return m, nil
}

// parseAddr parses an IPv6 address. Flow keys hold IPv4 addresses in the low
// 4 bytes with the high 12 zero, so v4 ranges are written ::a.b.c.d rather
// than in dotted-quad form.
func parseAddr(s string) ([16]byte, error) {
	var out [16]byte
	ip := net.ParseIP(s)
	if ip == nil || !strings.Contains(s, ":") {
		return out, fmt.Errorf("bad IPv6 %q", s)
	}
	copy(out[:], ip.To16())
	return out, nil
}
