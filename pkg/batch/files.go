package batch

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/soundprediction/casegraph/pkg/document"
	"github.com/soundprediction/casegraph/pkg/ingest"
	"github.com/soundprediction/casegraph/pkg/utils"
)

// DefaultSize is the number of records per batch file.
const DefaultSize = 10

const failedSuffix = "_failed.json"

var (
	inputName    = regexp.MustCompile(`^batch_(\d+)\.json$`)
	enrichedName = regexp.MustCompile(`^enriched_batch_(\d+)\.json$`)
)

// InputName returns the raw batch file name for batch number n, starting at 1.
func InputName(n int) string {
	return fmt.Sprintf("batch_%03d.json", n)
}

// EnrichedName returns the enriched output name for a batch ID such as "007".
func EnrichedName(id string) string {
	return "enriched_batch_" + id + ".json"
}

// FailedName returns the backup name an enriched output is renamed to on recovery.
func FailedName(id string) string {
	return "enriched_batch_" + id + failedSuffix
}

// InputID returns the batch ID of a raw batch file name, or "" if name is not one.
func InputID(name string) string {
	if m := inputName.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return ""
}

// EnrichedID returns the batch ID of an enriched output name, or "" if name is not one.
// Failed backups are not enriched outputs.
func EnrichedID(name string) string {
	if m := enrichedName.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return ""
}

// ReadCorpus reads every record of a JSON array or newline-delimited JSON file. Blank
// lines are ignored; a record that is not valid JSON is an error.
func ReadCorpus(path string) ([]*document.Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	var records []*document.Value
	err = ingest.ForEachRecord(f, func(line int, raw []byte) error {
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		v, err := document.Parse(raw)
		if err != nil {
			return fmt.Errorf("record %d: %w", line, err)
		}
		records = append(records, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// WriteRecords writes records as an indented JSON array, atomically.
func WriteRecords(path string, records []*document.Value) error {
	data, err := document.List(records...).MarshalIndent()
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return utils.WriteFileAtomic(path, data, 0644)
}

// Split writes records into dir as batch_001.json, batch_002.json, ... holding size
// records each, and returns the written paths.
func Split(records []*document.Value, dir string, size int) ([]string, error) {
	if size <= 0 {
		size = DefaultSize
	}
	var paths []string
	for i := 0; i < len(records); i += size {
		end := min(i+size, len(records))
		path := filepath.Join(dir, InputName(i/size+1))
		if err := WriteRecords(path, records[i:end]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// AnnotateFile reads the corpus at in, lets annotate modify the records in place and
// writes them to out as a JSON array.
func AnnotateFile(in, out string, annotate func(records []*document.Value) error) (int, error) {
	records, err := ReadCorpus(in)
	if err != nil {
		return 0, err
	}
	if err := annotate(records); err != nil {
		return 0, err
	}
	return len(records), WriteRecords(out, records)
}

// listBatches returns the IDs in dir whose names match idOf, in ascending order.
func listBatches(dir string, idOf func(string) string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id := idOf(e.Name()); id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// MergeToJSONL concatenates every enriched batch in enrichedDir, failed backups
// excluded, into out with one compact record per line. It returns the record count.
func MergeToJSONL(enrichedDir, out string) (int, error) {
	ids, err := listBatches(enrichedDir, EnrichedID)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), "."+filepath.Base(out)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	n := 0
	for _, id := range ids {
		records, err := ReadCorpus(filepath.Join(enrichedDir, EnrichedName(id)))
		if err != nil {
			tmp.Close()
			return 0, err
		}
		for _, rec := range records {
			line, err := rec.MarshalJSON()
			if err != nil {
				tmp.Close()
				return 0, err
			}
			w.Write(line)
			w.WriteByte('\n')
			n++
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return 0, fmt.Errorf("rename to %s: %w", out, err)
	}
	return n, nil
}
