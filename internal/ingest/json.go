package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crc-cores/internal/model"
)

// maxLineSize bounds one JSON lines record.
const maxLineSize = 16 << 20

// streamJSONArray decodes a JSON array of objects element by element.
func streamJSONArray(ctx context.Context, r io.Reader) (<-chan model.Doc, <-chan error) {
	docCh := make(chan model.Doc, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(docCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		// Expect opening bracket
		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "json: read opening token")
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			errCh <- eris.Errorf("json: expected '[', got %v", tok)
			return
		}

		for i := 0; decoder.More(); i++ {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}

			var raw json.RawMessage
			if err := decoder.Decode(&raw); err != nil {
				errCh <- eris.Wrapf(err, "json: decode element %d", i)
				return
			}
			d, err := decodeDoc(raw)
			if err != nil {
				errCh <- eris.Wrapf(err, "json: element %d", i)
				return
			}
			if err := send(ctx, docCh, d); err != nil {
				errCh <- err
				return
			}
		}

		// Consume closing bracket
		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return docCh, errCh
}

// streamJSONLines decodes one object per non-blank line.
func streamJSONLines(ctx context.Context, r io.Reader) (<-chan model.Doc, <-chan error) {
	docCh := make(chan model.Doc, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(docCh)
		defer close(errCh)

		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLineSize)

		for line := 1; sc.Scan(); line++ {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "jsonl: context cancelled")
				return
			}
			b := bytes.TrimSpace(sc.Bytes())
			if len(b) == 0 {
				continue
			}
			d, err := decodeDoc(b)
			if err != nil {
				errCh <- eris.Wrapf(err, "jsonl: line %d", line)
				return
			}
			if err := send(ctx, docCh, d); err != nil {
				errCh <- err
				return
			}
		}
		if err := sc.Err(); err != nil {
			errCh <- eris.Wrap(err, "jsonl: scan")
		}
	}()

	return docCh, errCh
}

// decodeDoc parses one object and unwraps a mongoexport {"$oid": ...} _id
// into its hex string.
func decodeDoc(b []byte) (model.Doc, error) {
	d, err := model.DecodeJSONDoc(b)
	if err != nil {
		return nil, err
	}
	if id, ok := d["_id"].(map[string]any); ok && len(id) == 1 {
		if oid, ok := id["$oid"].(string); ok {
			d["_id"] = oid
		}
	}
	return d, nil
}
