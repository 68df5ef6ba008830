package diag

import (
	"bufio"
	"bytes"
	"encoding/json"
)

// ParseRecords extracts diagnostic records from a runner's stderr.
// Lines that are not records (stray prints, panics from the host) are skipped.
func ParseRecords(b []byte) []Record {
	var records []Record
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil || r.Type != "log" {
			continue
		}
		records = append(records, r)
	}
	return records
}
