package source

import (
	"bufio"
	"io"
	"strings"

	"github.com/jordeu/gendas"
)

// readRows reads tab-separated lines from r into Rows via schema,
// skipping blank lines and comment lines beginning with '#' (spec.md §6
// "tab-separated text, each line one row, comments begin with #").
func readRows(r io.Reader, schema *gendas.Schema) ([]gendas.Row, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var rows []gendas.Row
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		row, err := schema.ParseRow(strings.Split(line, "\t"))
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// buildGroupIndex groups rows by their value in column label, preserving
// first-occurrence order (spec.md §3 "Group index": "insertion order
// reflects first-occurrence order in the source").
func buildGroupIndex(rows []gendas.Row, label string) gendas.GroupIndex {
	order := make([]gendas.Value, 0)
	segsByKey := make(map[string][]gendas.Segment)
	keyOf := make(map[string]gendas.Value)
	for _, row := range rows {
		v := row.Get(label)
		key := v.Kind().String() + ":" + v.String()
		if _, seen := keyOf[key]; !seen {
			keyOf[key] = v
			order = append(order, v)
		}
		segsByKey[key] = append(segsByKey[key], row.Segment())
	}
	index := make(gendas.GroupIndex, 0, len(order))
	for _, v := range order {
		key := v.Kind().String() + ":" + v.String()
		index = append(index, gendas.GroupEntry{Value: v, Segments: segsByKey[key]})
	}
	return index
}
