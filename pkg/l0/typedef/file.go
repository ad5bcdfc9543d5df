package typedef

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Entry is one parsed entry of a type definition file.
//
//	[[type]]
//	type_name = "IMU_NOTIFY_TYPE"
//	hex_name = "0x04"
//	out = "poll_imu"
//	msg_length = 0
type Entry struct {
	TypeName  string      `toml:"type_name"`
	HexName   string      `toml:"hex_name"`
	In        string      `toml:"in"`
	Out       string      `toml:"out"`
	MsgLength interface{} `toml:"msg_length"`
}

type entryFile struct {
	Types []Entry `toml:"type"`
}

// ParseEntries parses the content of a type definition file.
func ParseEntries(data string) ([]Entry, error) {
	var f entryFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, err
	}
	return f.Types, nil
}

// LoadFile parses a type definition file and loads a Table.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("types load failed (%s): %w", path, err)
	}
	entries, err := ParseEntries(string(data))
	if err != nil {
		return nil, fmt.Errorf("types parse failed (%s): %w", path, err)
	}
	records, err := RecordsFrom(entries)
	if err != nil {
		return nil, fmt.Errorf("types invalid (%s): %w", path, err)
	}
	return NewTable(records...)
}

// RecordsFrom converts entries into records, keeping the order.
func RecordsFrom(entries []Entry) ([]Record, error) {
	var records []Record
	for n, entry := range entries {
		recs, err := entry.Records()
		if err != nil {
			return nil, fmt.Errorf("type[%d] %s: %w", n, entry.TypeName, err)
		}
		records = append(records, recs...)
	}
	return records, nil
}

// Records converts the entry into records. An entry naming both
// directions yields two records, or a single DirBoth record if the
// names are the same. An entry naming no direction only declares
// a length.
func (e Entry) Records() ([]Record, error) {
	code, err := parseCode(e.HexName)
	if err != nil {
		return nil, err
	}
	length, err := parseLength(e.MsgLength)
	if err != nil {
		return nil, err
	}
	in, out := strings.TrimSpace(e.In), strings.TrimSpace(e.Out)
	switch {
	case in != "" && in == out:
		return []Record{{Name: in, Direction: DirBoth, Code: code, Length: length}}, nil
	case in != "" || out != "":
		var recs []Record
		if in != "" {
			recs = append(recs, Record{Name: in, Direction: DirIncoming, Code: code, Length: length})
		}
		if out != "" {
			recs = append(recs, Record{Name: out, Direction: DirOutgoing, Code: code, Length: length})
		}
		return recs, nil
	case length.IsDeclared():
		return []Record{{Name: strings.TrimSpace(e.TypeName), Direction: DirNone, Code: code, Length: length}}, nil
	}
	return nil, nil
}

func parseCode(hex string) (byte, error) {
	hex = strings.TrimSpace(hex)
	if hex == "" {
		return 0, fmt.Errorf("hex_name missing")
	}
	if !strings.HasPrefix(hex, "0x") && !strings.HasPrefix(hex, "0X") {
		hex = "0x" + hex
	}
	val, err := strconv.ParseUint(hex, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid hex_name %q: %w", hex, err)
	}
	return byte(val), nil
}

func parseLength(val interface{}) (Length, error) {
	switch v := val.(type) {
	case nil:
		return LengthUndeclared, nil
	case int64:
		if v < 0 || v > 0xff {
			return LengthUndeclared, fmt.Errorf("msg_length %d out of range", v)
		}
		return Fixed(int(v)), nil
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		switch s {
		case "":
			return LengthUndeclared, nil
		case "none", "variable", "n":
			return LengthVariable, nil
		}
		n, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return LengthUndeclared, fmt.Errorf("invalid msg_length %q", v)
		}
		return Fixed(int(n)), nil
	}
	return LengthUndeclared, fmt.Errorf("invalid msg_length %v", val)
}
